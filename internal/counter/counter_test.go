package counter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedroql/mvflow/internal/bus"
	"github.com/pedroql/mvflow/internal/engine"
	"github.com/pedroql/mvflow/internal/testutil"
)

func TestHandler_AddOne(t *testing.T) {
	sink := &testutil.CollectingEffectSink[Effect]{}
	h := NewHandler(NoDelay)

	got, err := engine.Collect(h(context.Background(), State{}, AddOne, sink))
	require.NoError(t, err)
	assert.Equal(t, []Mutation{IncrementBy(1)}, got)
	assert.Empty(t, sink.Effects())
}

func TestHandler_AddMany(t *testing.T) {
	sink := &testutil.CollectingEffectSink[Effect]{}
	h := NewHandler(NoDelay)

	got, err := engine.Collect(h(context.Background(), State{}, AddMany, sink))
	require.NoError(t, err)
	assert.Equal(t, []Mutation{
		{Kind: BackgroundJobStarted},
		IncrementBy(1),
		IncrementBy(2),
		IncrementBy(1),
		{Kind: BackgroundJobFinished},
	}, got)
	assert.Equal(t, []Effect{{Toast: ToastStarted}, {Toast: ToastFinished}}, sink.Effects())
}

func TestHandler_AddManyStopsWithContext(t *testing.T) {
	sink := &testutil.CollectingEffectSink[Effect]{}
	h := NewHandler(func(time.Duration, time.Duration) time.Duration { return time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := engine.Collect(h(ctx, State{}, AddMany, sink))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []Mutation{{Kind: BackgroundJobStarted}, {Kind: BackgroundJobFinished}}, got)
}

type rejectingSink struct{ sends, offers int }

func (s *rejectingSink) Send(context.Context, Effect) error {
	s.sends++
	return engine.NewEffectRejectedError("toast", nil)
}

func (s *rejectingSink) Offer(Effect) bool {
	s.offers++
	return false
}

func TestHandler_AddManyIgnoresRejectedToasts(t *testing.T) {
	sink := &rejectingSink{}
	h := NewHandler(NoDelay)

	got, err := engine.Collect(h(context.Background(), State{}, AddMany, sink))
	require.NoError(t, err)
	assert.Equal(t, []Mutation{
		{Kind: BackgroundJobStarted},
		IncrementBy(1),
		IncrementBy(2),
		IncrementBy(1),
		{Kind: BackgroundJobFinished},
	}, got)
	assert.Equal(t, 1, sink.sends)
	assert.Equal(t, 1, sink.offers)
}

func TestCounter_FullEffectObserverDoesNotLeakJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := New(ctx, State{}, NoDelay,
		engine.WithEffectBuffer(1),
		engine.WithEffectOverflow(bus.DropNewest),
	)
	// Subscribed and never read, so it fills after the first toast.
	_ = eng.ObserveEffects(ctx)

	view := testutil.NewFakeView[State, Action]()
	eng.AttachView(ctx, view, []Action{AddMany, AddMany, AddMany, AddMany}, nil)

	require.Eventually(t, func() bool {
		s := eng.CurrentState()
		return s.Value == 16 && s.BackgroundOperations == 0 && eng.InFlight() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, eng.Err())
}

func TestReduce(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		mutation Mutation
		want     State
	}{
		{"increment", State{Value: 1}, IncrementBy(2), State{Value: 3}},
		{"job started", State{}, Mutation{Kind: BackgroundJobStarted}, State{BackgroundOperations: 1}},
		{"job finished", State{BackgroundOperations: 2}, Mutation{Kind: BackgroundJobFinished}, State{BackgroundOperations: 1}},
		{"reset keeps jobs", State{Value: 9, BackgroundOperations: 1}, Mutation{Kind: ResetValue}, State{BackgroundOperations: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.state, tt.mutation))
		})
	}
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"AddOne": AddOne, "one": AddOne, "MANY": AddMany, " reset ": Reset} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAction("divide")
	assert.Error(t, err)
	assert.Equal(t, "AddMany", AddMany.String())
	assert.Equal(t, "Action(9)", Action(9).String())
}

func TestRandomDelay(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := RandomDelay(10*time.Millisecond, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
	assert.Equal(t, 5*time.Millisecond, RandomDelay(5*time.Millisecond, 5*time.Millisecond))
	assert.Equal(t, 2*time.Millisecond, ScaledDelay(func(time.Duration, time.Duration) time.Duration { return 4 * time.Millisecond }, 0.5)(0, 0))
}

func TestCounter_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := New(ctx, State{}, func(time.Duration, time.Duration) time.Duration { return 5 * time.Millisecond })
	effects := eng.ObserveEffects(ctx)

	view := testutil.NewFakeView[State, Action]()
	eng.AttachView(ctx, view, []Action{AddMany}, nil)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.True(t, view.WaitFor(waitCtx, func(s State) bool { return s.Value == 4 && !s.ShowProgress() }))

	var toasts []string
	for len(toasts) < 2 {
		select {
		case e := <-effects:
			toasts = append(toasts, e.Toast)
		case <-waitCtx.Done():
			t.Fatalf("missing toasts, got %v", toasts)
		}
	}
	assert.Equal(t, []string{ToastStarted, ToastFinished}, toasts)

	view.Emit(Reset)
	require.True(t, view.WaitFor(waitCtx, func(s State) bool { return s.Value == 0 }))
}

func TestActionText(t *testing.T) {
	b, err := json.Marshal([]Action{AddOne, AddMany, Reset})
	require.NoError(t, err)
	assert.Equal(t, `["AddOne","AddMany","Reset"]`, string(b))

	var got []Action
	require.NoError(t, json.Unmarshal([]byte(`["one","AddMany","reset"]`), &got))
	assert.Equal(t, []Action{AddOne, AddMany, Reset}, got)

	_, err = json.Marshal(Action(42))
	assert.Error(t, err)
}
