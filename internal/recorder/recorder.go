// Package recorder journals an engine's observable streams into a store.
//
// A Recorder subscribes to the action-with-state, mutation, state and effect
// streams when it starts and writes each value as canonical JSON. Each
// stream keeps its own sequence counter, so rows are numbered in the order
// the recorder observed them. The state stream conflates, so the recorded
// states are the ones a slow observer would see, always ending with the
// latest.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/pedroql/mvflow/internal/engine"
	"github.com/pedroql/mvflow/internal/store"
)

// Option configures a Recorder.
type Option func(*options)

type options struct {
	id    string
	label string
	clock clockz.Clock
	log   *slog.Logger
}

// WithSessionID sets the session ID. Defaults to a UUIDv7.
func WithSessionID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLabel sets the session label shown by `mvflow trace`.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithClock sets the clock used for the session start time.
func WithClock(c clockz.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the structured logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Recorder writes one engine session to a store.
type Recorder struct {
	store   *store.Store
	session store.Session
	log     *slog.Logger

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// Start creates the session row and subscribes to eng's streams. Everything
// the engine publishes after Start returns is recorded until ctx ends or the
// engine stops.
func Start[S, A, M, E any](ctx context.Context, st *store.Store, eng *engine.Engine[S, A, M, E], opts ...Option) (*Recorder, error) {
	o := options{
		label: "session",
		clock: clockz.RealClock,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("recorder: session id: %w", err)
		}
		o.id = id.String()
	}

	r := &Recorder{
		store: st,
		session: store.Session{
			ID:        o.id,
			Label:     o.label,
			StartedAt: o.clock.Now(),
		},
		log: o.log.With("session", o.id),
	}
	if err := st.CreateSession(ctx, r.session); err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}

	// Writes outlive ctx so values already received are not lost when the
	// subscriptions end.
	wctx := context.WithoutCancel(ctx)

	record(r, "action", eng.ObserveActionsWithState(ctx), func(seq int64, d engine.ActionWithState[A, S]) error {
		action, err := store.EncodePayload(d.Action)
		if err != nil {
			return err
		}
		state, err := store.EncodePayload(d.State)
		if err != nil {
			return err
		}
		return st.WriteDispatch(wctx, store.Dispatch{
			SessionID:  r.session.ID,
			Seq:        d.Seq,
			DispatchID: d.DispatchID,
			Action:     action,
			State:      state,
		})
	})
	record(r, "mutation", eng.ObserveMutations(ctx), func(seq int64, m M) error {
		return r.writeRecord(wctx, st.WriteMutation, seq, m)
	})
	record(r, "state", eng.ObserveState(ctx), func(seq int64, s S) error {
		return r.writeRecord(wctx, st.WriteState, seq, s)
	})
	record(r, "effect", eng.ObserveEffects(ctx), func(seq int64, e E) error {
		return r.writeRecord(wctx, st.WriteEffect, seq, e)
	})

	return r, nil
}

// Session returns the recorded session.
func (r *Recorder) Session() store.Session {
	return r.session
}

// Wait blocks until every stream has ended and returns the write errors,
// joined.
func (r *Recorder) Wait() error {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

func (r *Recorder) writeRecord(ctx context.Context, write func(context.Context, store.Record) error, seq int64, v any) error {
	payload, err := store.EncodePayload(v)
	if err != nil {
		return err
	}
	return write(ctx, store.Record{SessionID: r.session.ID, Seq: seq, Payload: payload})
}

func (r *Recorder) fail(stream string, seq int64, err error) {
	r.log.Warn("recording failed", "stream", stream, "seq", seq, "error", err)
	r.mu.Lock()
	r.errs = append(r.errs, fmt.Errorf("%s %d: %w", stream, seq, err))
	r.mu.Unlock()
}

// record drains ch in its own goroutine, numbering values from 1.
func record[T any](r *Recorder, stream string, ch <-chan T, write func(int64, T) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var seq int64
		for v := range ch {
			seq++
			if err := write(seq, v); err != nil {
				r.fail(stream, seq, err)
			}
		}
	}()
}
