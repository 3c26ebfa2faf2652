package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"

	"github.com/pedroql/mvflow/internal/bus"
)

// Engine coordinates Actions, Mutations, Effects and State for one screen or
// feature.
//
// Thread-safety model:
//   - AttachView, AddExternalActionSource and Observe*: safe from any goroutine
//   - Handlers run concurrently, one goroutine per dispatched Action
//   - Reducer calls are serialized by the gate
//
// Two scopes bound the work. The context given to AttachView bounds that
// view's render and action loops only. The context given to New bounds the
// dispatch loop, every Handler and every fold. Work accepted from a view keeps
// running after the view's context ends.
type Engine[S, A, M, E any] struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	cfg    config
	log    *slog.Logger

	cell    *StateCell[S]
	gate    *gate[S, M]
	handler Handler[S, A, M, E]
	inbox   *inbox[A]
	seq     sequence

	actions   *bus.Bus[ActionWithState[A, S]]
	mutations *bus.Bus[M]
	effects   *bus.Bus[E]

	inFlight atomic.Int64
	handlers sync.WaitGroup
	halt     sync.Once
	loopDone chan struct{}
	done     chan struct{}
}

var (
	_ FlowWithEffects[int, int, int, int] = (*Engine[int, int, int, int])(nil)
	_ Flow[int, int, int]                 = (*Engine[int, int, int, NoEffect])(nil)
)

// New creates an Engine holding initial and starts its dispatch loop.
//
// ctx is the engine scope: cancelling it stops all Handlers and folding for
// good, then closes every observer stream.
func New[S, A, M, E any](
	ctx context.Context,
	initial S,
	handler Handler[S, A, M, E],
	reducer Reducer[S, M],
	opts ...Option,
) *Engine[S, A, M, E] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ectx, cancel := context.WithCancelCause(ctx)
	e := &Engine[S, A, M, E]{
		ctx:       ectx,
		cancel:    cancel,
		cfg:       cfg,
		log:       cfg.slog,
		cell:      NewStateCell(initial),
		handler:   handler,
		inbox:     newInbox[A](),
		actions:   bus.New[ActionWithState[A, S]](bus.Buffered(cfg.observerBuffer, bus.DropNewest)),
		mutations: bus.New[M](bus.Buffered(cfg.observerBuffer, bus.DropNewest)),
		effects:   bus.New[E](bus.Buffered(cfg.effectBuffer, cfg.effectOverflow)),
		loopDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.gate = newGate(e.cell, reducer, e.applied)

	go e.run()
	go e.shutdown()
	return e
}

// NewSimple creates an Engine whose Handler produces no Effects.
func NewSimple[S, A, M any](
	ctx context.Context,
	initial S,
	handler SimpleHandler[S, A, M],
	reducer Reducer[S, M],
	opts ...Option,
) *Engine[S, A, M, NoEffect] {
	wrapped := func(ctx context.Context, state S, action A, _ EffectSink[NoEffect]) iter.Seq2[M, error] {
		return handler(ctx, state, action)
	}
	return New[S, A, M, NoEffect](ctx, initial, wrapped, reducer, opts...)
}

// AttachView starts rendering into view and reading its Actions.
//
// initialActions are dispatched first, as if view had emitted them. Both
// loops stop when ctx ends; Actions already read keep being processed.
// A nil logger falls back to the engine default.
func (e *Engine[S, A, M, E]) AttachView(ctx context.Context, view View[S, A], initialActions []A, logger Logger) {
	logger = e.loggerOr(logger)

	// Registered before any Action is read so the first render is the
	// State current at attach time.
	states := e.cell.Subscribe(ctx)
	capitan.Emit(ctx, ViewAttached)

	go e.renderLoop(ctx, view, states, logger)
	go e.viewActionLoop(ctx, view, initialActions, logger)
}

// AddExternalActionSource dispatches every Action received from actions until
// the channel closes or the engine stops.
func (e *Engine[S, A, M, E]) AddExternalActionSource(actions <-chan A, logger Logger) {
	logger = e.loggerOr(logger)

	go func() {
		logger("External actions flow started")
		defer logger("External actions flow completed")

		for {
			select {
			case <-e.ctx.Done():
				return
			case a, ok := <-actions:
				if !ok {
					return
				}
				if !e.ingest(a, logger, "external") {
					return
				}
			}
		}
	}()
}

// ObserveState returns the current State followed by later ones. A reader
// that falls behind skips to the newest State.
func (e *Engine[S, A, M, E]) ObserveState(ctx context.Context) <-chan S {
	return e.cell.Subscribe(ctx)
}

// ObserveActionsWithState returns every dispatched Action with the State
// current when it was dispatched.
func (e *Engine[S, A, M, E]) ObserveActionsWithState(ctx context.Context) <-chan ActionWithState[A, S] {
	return e.actions.Subscribe(ctx).C()
}

// ObserveActions returns every dispatched Action.
func (e *Engine[S, A, M, E]) ObserveActions(ctx context.Context) <-chan A {
	return mapStream(ctx, e.actions.Subscribe(ctx).C(), func(d ActionWithState[A, S]) A {
		return d.Action
	})
}

// ObserveMutations returns every Mutation right after it is folded.
func (e *Engine[S, A, M, E]) ObserveMutations(ctx context.Context) <-chan M {
	return e.mutations.Subscribe(ctx).C()
}

// ObserveEffects returns Effects sent while the returned stream is active.
// Engines built with NewSimple never deliver any.
func (e *Engine[S, A, M, E]) ObserveEffects(ctx context.Context) <-chan E {
	return e.effects.Subscribe(ctx).C()
}

// CurrentState returns a snapshot of the State.
func (e *Engine[S, A, M, E]) CurrentState() S {
	return e.cell.Read()
}

// StateVersion returns how many Mutations have been folded.
func (e *Engine[S, A, M, E]) StateVersion() int64 {
	return e.cell.Version()
}

// InFlight returns the number of Actions accepted but not yet fully handled.
func (e *Engine[S, A, M, E]) InFlight() int {
	return int(e.inFlight.Load())
}

// Err returns nil while the engine runs. After it stops it returns the cause:
// the Reducer failure that halted it, or the engine context's error.
func (e *Engine[S, A, M, E]) Err() error {
	if e.ctx.Err() == nil {
		return nil
	}
	return context.Cause(e.ctx)
}

// Wait blocks until the engine has stopped and every Handler has returned.
func (e *Engine[S, A, M, E]) Wait() {
	<-e.done
}

// Done is closed once the engine has fully stopped.
func (e *Engine[S, A, M, E]) Done() <-chan struct{} {
	return e.done
}

func (e *Engine[S, A, M, E]) loggerOr(l Logger) Logger {
	if l != nil {
		return l
	}
	return e.cfg.logger
}

// ingest queues a for dispatch. Returns false once the engine has stopped.
func (e *Engine[S, A, M, E]) ingest(a A, logger Logger, source string) bool {
	e.inFlight.Add(1)
	if !e.inbox.Enqueue(envelope[A]{action: a, logger: logger, source: source}) {
		e.inFlight.Add(-1)
		logger(fmt.Sprintf("Engine stopped, ignoring action %v", a))
		return false
	}
	return true
}

// run is the dispatch loop. It never waits on a Handler.
func (e *Engine[S, A, M, E]) run() {
	defer close(e.loopDone)
	e.log.Debug("engine started")

	for {
		if env, ok := e.inbox.TryDequeue(); ok {
			e.dispatch(env)
			continue
		}

		select {
		case <-e.ctx.Done():
			e.inbox.Close()
			for {
				if _, ok := e.inbox.TryDequeue(); !ok {
					break
				}
				e.inFlight.Add(-1)
			}
			return
		case <-e.inbox.Wait():
		}
	}
}

func (e *Engine[S, A, M, E]) dispatch(env envelope[A]) {
	d := ActionWithState[A, S]{
		Action:     env.action,
		State:      e.cell.Read(),
		Seq:        e.seq.next(),
		DispatchID: e.cfg.ids.Generate(),
	}

	env.logger(fmt.Sprintf("Received action %v", d.Action))
	e.log.Debug("action dispatched",
		"dispatch", d.DispatchID,
		"seq", d.Seq,
		"source", env.source,
		"action", fmt.Sprintf("%v", d.Action),
	)

	if !e.actions.Offer(d) {
		e.observerDropped("actions", fmt.Sprintf("%v", d.Action))
	}

	e.handlers.Add(1)
	go e.handle(d, env.logger)
}

func (e *Engine[S, A, M, E]) handle(d ActionWithState[A, S], logger Logger) {
	defer e.handlers.Done()
	defer e.inFlight.Add(-1)

	sink := &effectSink[S, A, M, E]{engine: e, logger: logger, dispatchID: d.DispatchID}
	err := e.fold(d, sink, logger)

	switch {
	case err == nil:
		logger(fmt.Sprintf("Action %v completed", d.Action))
		e.log.Debug("action completed", "dispatch", d.DispatchID, "seq", d.Seq)

	case IsReducerError(err):
		e.halt.Do(func() {
			logger(fmt.Sprintf("Reducer failed, stopping: %v", err))
			e.log.Error("reducer failed, state folding halted",
				"dispatch", d.DispatchID,
				"error", err,
			)
			capitan.Emit(context.WithoutCancel(e.ctx), ReducerFailed,
				KeyDispatchID.Field(d.DispatchID),
				KeyError.Field(err.Error()),
			)
			e.cancel(err)
		})

	case e.ctx.Err() != nil:
		e.log.Debug("action abandoned, engine stopped", "dispatch", d.DispatchID, "seq", d.Seq)

	default:
		herr := NewHandlerError(d.DispatchID, fmt.Sprintf("%v", d.Action), err)
		logger(fmt.Sprintf("Action %v failed: %v", d.Action, err))
		e.log.Warn("handler failed",
			"dispatch", d.DispatchID,
			"seq", d.Seq,
			"action", fmt.Sprintf("%v", d.Action),
			"error", herr,
		)
		capitan.Emit(e.ctx, HandlerFailed,
			KeyDispatchID.Field(d.DispatchID),
			KeyAction.Field(fmt.Sprintf("%v", d.Action)),
			KeyError.Field(err.Error()),
		)
	}
}

// fold drains the Handler sequence through the gate, in emission order.
func (e *Engine[S, A, M, E]) fold(d ActionWithState[A, S], sink EffectSink[E], logger Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	for m, herr := range e.handler(e.ctx, d.State, d.Action, sink) {
		if herr != nil {
			return herr
		}
		if e.ctx.Err() != nil {
			return NewStoppedError(context.Cause(e.ctx))
		}
		logger(fmt.Sprintf("Applying mutation %v from action %v", m, d.Action))
		if _, err := e.gate.apply(m); err != nil {
			return err
		}
	}
	return nil
}

// applied runs under the gate lock after each fold.
func (e *Engine[S, A, M, E]) applied(m M, _ S, version int64) {
	if !e.mutations.Offer(m) {
		e.observerDropped("mutations", fmt.Sprintf("%v", m))
	}
	e.log.Debug("mutation applied", "version", version, "mutation", fmt.Sprintf("%v", m))
}

func (e *Engine[S, A, M, E]) observerDropped(stream, value string) {
	e.log.Warn("observer full, value dropped", "stream", stream, "value", value)
	capitan.Emit(e.ctx, ObserverDropped,
		KeyStream.Field(stream),
		KeyValue.Field(value),
	)
}

func (e *Engine[S, A, M, E]) renderLoop(ctx context.Context, view View[S, A], states <-chan S, logger Logger) {
	logger("State flow started")
	defer func() {
		logger("State flow completed")
		capitan.Emit(context.WithoutCancel(ctx), ViewDetached)
	}()

	for s := range states {
		if ctx.Err() != nil {
			return
		}
		logger(fmt.Sprintf("New state: %v", s))
		e.render(view, s, logger)
	}
}

// render isolates a panicking View from the engine.
func (e *Engine[S, A, M, E]) render(view View[S, A], s S, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger(fmt.Sprintf("Render failed: %v", r))
			e.log.Warn("view render panicked", "error", fmt.Sprintf("%v", r))
		}
	}()
	view.Render(s)
}

func (e *Engine[S, A, M, E]) viewActionLoop(ctx context.Context, view View[S, A], initial []A, logger Logger) {
	logger("View actions flow started")
	defer logger("View actions flow completed")

	for _, a := range initial {
		if ctx.Err() != nil {
			return
		}
		if !e.ingest(a, logger, "view") {
			return
		}
	}

	actions := view.Actions(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-actions:
			if !ok {
				return
			}
			if !e.ingest(a, logger, "view") {
				return
			}
		}
	}
}

// shutdown closes every stream once the dispatch loop and all Handlers are done.
func (e *Engine[S, A, M, E]) shutdown() {
	<-e.loopDone
	e.handlers.Wait()

	e.actions.Close()
	e.mutations.Close()
	e.effects.Close()
	e.cell.Close()

	e.log.Debug("engine stopped", "cause", context.Cause(e.ctx))
	close(e.done)
}

func mapStream[T, U any](ctx context.Context, in <-chan T, f func(T) U) <-chan U {
	out := make(chan U)
	go func() {
		defer close(out)
		for v := range in {
			select {
			case out <- f(v):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
