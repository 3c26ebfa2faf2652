package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

func TestTicker_FiresOnStartThenEveryInterval(t *testing.T) {
	clock := clockz.NewFakeClock()
	tk := NewTicker(time.Second, WithClock(clock))
	defer tk.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := tk.Subscribe(ctx)
	require.NoError(t, tk.Start(ctx))
	assert.True(t, tk.Running())

	select {
	case tick := <-ticks:
		assert.Equal(t, int64(1), tick.N)
	case <-time.After(time.Second):
		t.Fatal("no tick on start")
	}

	var next Tick
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		clock.BlockUntilReady()
		select {
		case next = <-ticks:
			return true
		case <-time.After(5 * time.Millisecond):
			return false
		}
	}, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, next.N, int64(2))
}

func TestTicker_InitialDelay(t *testing.T) {
	clock := clockz.NewFakeClock()
	tk := NewTicker(time.Second, WithClock(clock), WithInitialDelay(500*time.Millisecond))
	defer tk.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := tk.Subscribe(ctx)
	require.NoError(t, tk.Start(ctx))

	select {
	case <-ticks:
		t.Fatal("tick before the initial delay")
	case <-time.After(20 * time.Millisecond):
	}

	require.Eventually(t, func() bool {
		clock.Advance(500 * time.Millisecond)
		clock.BlockUntilReady()
		select {
		case tick := <-ticks:
			return tick.N == 1
		case <-time.After(5 * time.Millisecond):
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestTicker_StartStopRestart(t *testing.T) {
	tk := NewTicker(time.Hour, WithClock(clockz.NewFakeClock()))
	defer tk.Close()

	ctx := context.Background()
	require.NoError(t, tk.Start(ctx))
	assert.ErrorIs(t, tk.Start(ctx), ErrTickerRunning)

	tk.Stop()
	tk.Stop()
	assert.False(t, tk.Running())

	require.NoError(t, tk.Start(ctx), "a stopped ticker can be started again")
	assert.True(t, tk.Running())
}

func TestTicker_InstancesAreIndependent(t *testing.T) {
	clock := clockz.NewFakeClock()
	a := NewTicker(time.Second, WithClock(clock))
	b := NewTicker(time.Second, WithClock(clock))
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bTicks := b.Subscribe(ctx)
	require.NoError(t, a.Start(ctx))

	select {
	case <-bTicks:
		t.Fatal("starting one ticker must not drive another")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTicker_CloseEndsSubscriptions(t *testing.T) {
	tk := NewTicker(time.Second, WithClock(clockz.NewFakeClock()))
	ticks := tk.Subscribe(context.Background())

	tk.Close()

	select {
	case _, ok := <-ticks:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestTicker_StartContextEndStopsTicker(t *testing.T) {
	clock := clockz.NewFakeClock()
	tk := NewTicker(time.Second, WithClock(clock))
	defer tk.Close()

	first, cancel := context.WithCancel(context.Background())
	require.NoError(t, tk.Start(first))
	require.True(t, tk.Running())

	cancel()
	require.Eventually(t, func() bool { return !tk.Running() }, time.Second, time.Millisecond)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	ticks := tk.Subscribe(ctx)
	require.NoError(t, tk.Start(ctx), "a ticker whose context ended can be restarted")
	assert.True(t, tk.Running())

	select {
	case tick := <-ticks:
		assert.Equal(t, int64(2), tick.N)
	case <-time.After(time.Second):
		t.Fatal("no tick after restart")
	}

	tk.Stop()
	assert.False(t, tk.Running())
}
