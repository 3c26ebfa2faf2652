package engine

import (
	"context"
	"sync"

	"github.com/pedroql/mvflow/internal/bus"
)

// StateCell holds the current State and broadcasts every replacement.
//
// Subscribers get the current value immediately, then later values with
// newest-wins conflation. Replace is only called by the reducer gate, which
// serializes writers; reads are lock-free snapshots for callers.
type StateCell[S any] struct {
	mu      sync.RWMutex
	value   S
	version sequence

	bus *bus.Bus[S]
}

// NewStateCell creates a cell holding initial at version 0.
func NewStateCell[S any](initial S) *StateCell[S] {
	c := &StateCell[S]{
		value: initial,
		bus:   bus.New[S](bus.Conflate(), bus.WithReplay()),
	}
	c.bus.Offer(initial)
	return c
}

// Read returns the current State.
func (c *StateCell[S]) Read() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Version returns how many times the State has been replaced.
func (c *StateCell[S]) Version() int64 {
	return c.version.last()
}

// Replace installs next and publishes it. Returns the new version.
func (c *StateCell[S]) Replace(next S) int64 {
	c.mu.Lock()
	c.value = next
	v := c.version.next()
	c.mu.Unlock()

	c.bus.Offer(next)
	return v
}

// Subscribe returns the current State followed by later ones.
func (c *StateCell[S]) Subscribe(ctx context.Context) <-chan S {
	return c.bus.Subscribe(ctx).C()
}

// Close ends all subscriptions after they deliver what they hold.
func (c *StateCell[S]) Close() {
	c.bus.Close()
}
