// Package lifecycle is a sample MVFlow application: a counter that advances
// on every tick of a ticker owned by the flow instance.
package lifecycle

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/pedroql/mvflow/internal/engine"
	"github.com/pedroql/mvflow/internal/source"
)

// State counts ticks received since StartCounter.
type State struct {
	Counter int `json:"counter"`
}

func (s State) String() string {
	return fmt.Sprintf("State(counter=%d)", s.Counter)
}

// Action is a lifecycle intent.
type Action string

// StartCounter subscribes the counter to the ticker.
const StartCounter Action = "StartCounter"

// Mutation is a single tick.
type Mutation string

// Tick advances the counter by one.
const Tick Mutation = "Tick"

// Reduce applies a Tick.
func Reduce(s State, m Mutation) State {
	if m == Tick {
		s.Counter++
	}
	return s
}

// Flow is a lifecycle engine together with its ticker.
type Flow struct {
	*engine.Engine[State, Action, Mutation, engine.NoEffect]
	ticker *source.Ticker
}

// Option configures New.
type Option func(*options)

type options struct {
	clock      clockz.Clock
	engineOpts []engine.Option
}

// WithClock drives the ticker from clock.
func WithClock(c clockz.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithEngineOptions passes options to the engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// New creates the flow and starts its ticker. Both stop when ctx ends;
// Close stops the ticker earlier.
func New(ctx context.Context, interval time.Duration, opts ...Option) (*Flow, error) {
	o := options{clock: clockz.RealClock}
	for _, opt := range opts {
		opt(&o)
	}

	ticker := source.NewTicker(interval, source.WithClock(o.clock))
	if err := ticker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ticker: %w", err)
	}

	f := &Flow{
		Engine: engine.NewSimple(ctx, State{}, handler(ticker), Reduce, o.engineOpts...),
		ticker: ticker,
	}
	go func() {
		<-f.Done()
		ticker.Close()
	}()
	return f, nil
}

// Ticker returns the flow's ticker.
func (f *Flow) Ticker() *source.Ticker {
	return f.ticker
}

// Close stops the ticker. Handlers listening to it complete.
func (f *Flow) Close() {
	f.ticker.Close()
}

func handler(ticker *source.Ticker) engine.SimpleHandler[State, Action, Mutation] {
	return func(ctx context.Context, _ State, action Action) iter.Seq2[Mutation, error] {
		if action != StartCounter {
			return engine.Fail[Mutation](fmt.Errorf("unknown lifecycle action %q", action))
		}
		ticks := ticker.Subscribe(ctx)
		return func(yield func(Mutation, error) bool) {
			for range ticks {
				if !yield(Tick, nil) {
					return
				}
			}
		}
	}
}
