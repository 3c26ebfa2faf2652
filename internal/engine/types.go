package engine

import (
	"context"
	"iter"
)

// Reducer folds one Mutation into a State. It must be pure and fast: calls are
// serialized engine-wide and a stalled Reducer stalls every State update.
// A Reducer must not panic under normal operation; a panic halts folding.
type Reducer[S, M any] func(state S, mutation M) S

// Handler computes the Mutations for one Action.
//
// The returned sequence is consumed on its own goroutine bound to the engine
// context; it may block between values and may push Effects into the sink
// while running. state is a snapshot taken at dispatch and can be stale by the
// time the Mutations are folded. Yielding a non-nil error ends the sequence and
// is logged; Mutations already folded stay applied.
type Handler[S, A, M, E any] func(ctx context.Context, state S, action A, effects EffectSink[E]) iter.Seq2[M, error]

// SimpleHandler is a Handler that produces no Effects.
type SimpleHandler[S, A, M any] func(ctx context.Context, state S, action A) iter.Seq2[M, error]

// EffectSink receives the Effects a Handler produces.
type EffectSink[E any] interface {
	// Send publishes e, waiting while an effect observer has no room when the
	// effect policy blocks. Returns an error if ctx ends first, the engine
	// has stopped, or a dropping observer rejected e.
	Send(ctx context.Context, effect E) error

	// Offer publishes e without waiting. Returns false, and logs, when an
	// observer rejected it.
	Offer(effect E) bool
}

// View is the primary render target and Action source.
type View[S, A any] interface {
	// Render draws state. Called from the view's render goroutine only.
	Render(state S)

	// Actions returns the stream of user intents. The channel may stay open
	// forever; the engine stops reading when ctx ends.
	Actions(ctx context.Context) <-chan A
}

// Logger receives human-readable lifecycle messages.
type Logger func(message string)

// ActionWithState pairs a dispatched Action with the State current at dispatch.
type ActionWithState[A, S any] struct {
	Action A
	State  S

	// Seq orders dispatches engine-wide, starting at 1.
	Seq int64
	// DispatchID correlates log lines of one dispatch.
	DispatchID string
}

// NoEffect is the Effect type of engines built with NewSimple.
type NoEffect struct{}

// Emit returns a sequence yielding the given Mutations in order.
func Emit[M any](mutations ...M) iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		for _, m := range mutations {
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Fail returns a sequence that ends immediately with err.
func Fail[M any](err error) iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		var zero M
		yield(zero, err)
	}
}

// Collect drains seq into a slice, stopping at the first error.
// Intended for testing Handlers in isolation.
func Collect[M any](seq iter.Seq2[M, error]) ([]M, error) {
	out := []M{}
	for m, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Flow is the engine surface shared by both variants.
type Flow[S, A, M any] interface {
	AttachView(ctx context.Context, view View[S, A], initialActions []A, logger Logger)
	AddExternalActionSource(actions <-chan A, logger Logger)
	ObserveState(ctx context.Context) <-chan S
	ObserveActionsWithState(ctx context.Context) <-chan ActionWithState[A, S]
	ObserveActions(ctx context.Context) <-chan A
	ObserveMutations(ctx context.Context) <-chan M
	CurrentState() S
	InFlight() int
	Err() error
	Wait()
}

// FlowWithEffects adds the Effect stream.
type FlowWithEffects[S, A, M, E any] interface {
	Flow[S, A, M]
	ObserveEffects(ctx context.Context) <-chan E
}
