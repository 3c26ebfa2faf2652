package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/pedroql/mvflow/internal/counter"
	"github.com/pedroql/mvflow/internal/engine"
	"github.com/pedroql/mvflow/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRecorder_RecordsCounterSession(t *testing.T) {
	st := openStore(t)
	engineCtx, stop := context.WithCancel(context.Background())
	defer stop()

	eng := counter.New(engineCtx, counter.State{}, counter.NoDelay,
		engine.WithDispatchIDs(engine.NewFixedGenerator("first")))

	clock := clockz.NewFakeClock()
	rec, err := Start(context.Background(), st, eng,
		WithSessionID("sess-1"),
		WithLabel("counter"),
		WithClock(clock),
	)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rec.Session().ID)

	actions := make(chan counter.Action, 3)
	actions <- counter.AddOne
	actions <- counter.AddOne
	actions <- counter.AddMany
	close(actions)
	eng.AddExternalActionSource(actions, nil)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		j, err := st.ReadSession(ctx, "sess-1")
		if err != nil || len(j.Mutations) != 7 || len(j.Effects) != 2 || len(j.States) == 0 {
			return false
		}
		return j.States[len(j.States)-1].Payload == `{"background_operations":0,"value":6}`
	}, 2*time.Second, 5*time.Millisecond)

	stop()
	eng.Wait()
	require.NoError(t, rec.Wait())

	j, err := st.ReadSession(ctx, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "counter", j.Session.Label)
	assert.True(t, clock.Now().Equal(j.Session.StartedAt))

	require.Len(t, j.Dispatches, 3)
	assert.Equal(t, "first", j.Dispatches[0].DispatchID)
	assert.Equal(t, int64(1), j.Dispatches[0].Seq)
	assert.Equal(t, `"AddOne"`, j.Dispatches[0].Action)
	assert.Equal(t, `{"background_operations":0,"value":0}`, j.Dispatches[0].State)
	assert.Equal(t, `"AddMany"`, j.Dispatches[2].Action)

	// The state stream replays the initial state first.
	assert.Equal(t, `{"background_operations":0,"value":0}`, j.States[0].Payload)
	for _, s := range j.States {
		assert.Len(t, s.Hash, 64)
	}

	assert.Equal(t, `{"toast":"This might take a while..."}`, j.Effects[0].Payload)
	assert.Equal(t, `{"toast":"Background job finished"}`, j.Effects[1].Payload)
}

func TestRecorder_DefaultSessionID(t *testing.T) {
	st := openStore(t)
	ctx, stop := context.WithCancel(context.Background())
	eng := counter.New(ctx, counter.State{}, counter.NoDelay)

	rec, err := Start(ctx, st, eng)
	require.NoError(t, err)
	assert.Len(t, rec.Session().ID, 36)
	assert.Equal(t, "session", rec.Session().Label)

	stop()
	eng.Wait()
	require.NoError(t, rec.Wait())

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, rec.Session().ID, sessions[0].ID)
}

func TestRecorder_ReportsWriteFailures(t *testing.T) {
	st := openStore(t)
	engineCtx, stop := context.WithCancel(context.Background())
	defer stop()
	eng := counter.New(engineCtx, counter.State{}, counter.NoDelay)

	rec, err := Start(context.Background(), st, eng, WithSessionID("sess-1"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	actions := make(chan counter.Action, 1)
	actions <- counter.AddOne
	close(actions)
	eng.AddExternalActionSource(actions, nil)

	require.Eventually(t, func() bool { return eng.StateVersion() == 1 }, time.Second, time.Millisecond)
	stop()
	eng.Wait()

	err = rec.Wait()
	require.Error(t, err)
	assert.ErrorContains(t, err, "mutation 1")
}

func TestRecorder_CreateSessionFails(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.Close())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	eng := counter.New(ctx, counter.State{}, counter.NoDelay)

	_, err := Start(ctx, st, eng, WithSessionID("x"))
	assert.ErrorContains(t, err, "recorder")
}
