package engine

import (
	"log/slog"

	"github.com/pedroql/mvflow/internal/bus"
)

const (
	// DefaultObserverBuffer is the queue size of each action and mutation observer.
	DefaultObserverBuffer = 64

	// DefaultEffectBuffer is the queue size of each effect observer.
	DefaultEffectBuffer = 64
)

// Option configures an Engine.
type Option func(*config)

type config struct {
	logger         Logger
	slog           *slog.Logger
	observerBuffer int
	effectBuffer   int
	effectOverflow bus.Overflow
	ids            DispatchIDGenerator
}

func defaultConfig() config {
	return config{
		logger:         func(string) {},
		slog:           slog.Default(),
		observerBuffer: DefaultObserverBuffer,
		effectBuffer:   DefaultEffectBuffer,
		effectOverflow: bus.Block,
		ids:            UUIDv7Generator{},
	}
}

// WithLogger sets the Logger used when AttachView or AddExternalActionSource
// receive a nil one.
func WithLogger(l Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSlog sets the structured logger. Defaults to slog.Default().
func WithSlog(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.slog = l
		}
	}
}

// WithObserverBuffer sets how many undelivered values each action or mutation
// observer may hold before new ones are dropped.
func WithObserverBuffer(n int) Option {
	return func(c *config) {
		c.observerBuffer = n
	}
}

// WithEffectBuffer sets how many undelivered Effects each effect observer may hold.
func WithEffectBuffer(n int) Option {
	return func(c *config) {
		c.effectBuffer = n
	}
}

// WithEffectOverflow selects what EffectSink.Send does when an observer is
// full: bus.Block (default) waits, bus.DropNewest rejects.
func WithEffectOverflow(o bus.Overflow) Option {
	return func(c *config) {
		c.effectOverflow = o
	}
}

// WithDispatchIDs sets the dispatch ID generator.
func WithDispatchIDs(gen DispatchIDGenerator) Option {
	return func(c *config) {
		if gen != nil {
			c.ids = gen
		}
	}
}
