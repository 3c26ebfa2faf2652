package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_AppliesInOrderAndReportsVersions(t *testing.T) {
	cell := NewStateCell(0)
	var versions []int64
	g := newGate(cell, func(s, m int) int { return s*10 + m }, func(_ int, _ int, v int64) {
		versions = append(versions, v)
	})

	for _, m := range []int{1, 2, 3} {
		_, err := g.apply(m)
		require.NoError(t, err)
	}

	assert.Equal(t, 123, cell.Read())
	assert.Equal(t, int64(3), cell.Version())
	assert.Equal(t, []int64{1, 2, 3}, versions)
}

func TestGate_ConcurrentAppliesLoseNoUpdates(t *testing.T) {
	cell := NewStateCell(0)
	g := newGate(cell, func(s, m int) int { return s + m }, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = g.apply(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, cell.Read())
}

func TestGate_ReducerPanicHaltsGate(t *testing.T) {
	cell := NewStateCell("ok")
	g := newGate(cell, func(s, m string) string {
		if m == "bad" {
			panic("cannot reduce")
		}
		return s + m
	}, nil)

	_, err := g.apply("bad")
	require.Error(t, err)
	assert.True(t, IsReducerError(err))
	assert.Contains(t, err.Error(), "cannot reduce")

	_, err = g.apply("!")
	assert.True(t, IsReducerError(err), "gate refuses mutations after a reducer failure")
	assert.Equal(t, "ok", cell.Read())
	assert.Equal(t, err, g.err())
}
