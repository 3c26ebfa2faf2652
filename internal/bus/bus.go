package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("bus closed")

// Option configures a Bus.
type Option func(*options)

type options struct {
	replay bool
}

// WithReplay makes new subscribers receive the most recently published value
// before any later one.
func WithReplay() Option {
	return func(o *options) {
		o.replay = true
	}
}

// Bus broadcasts values of type T to independent subscriptions.
//
// Publishing holds the bus lock while the value is placed into every
// subscription queue, so all subscribers observe publications in the same
// order. Placing a value never blocks: a full queue either conflates or
// rejects, and only Send waits, outside the lock, for room.
type Bus[T any] struct {
	policy Policy
	replay bool

	mu        sync.Mutex
	subs      []*Subscription[T]
	latest    T
	hasLatest bool
	closed    bool
}

// New creates a bus whose subscriptions all use policy.
func New[T any](policy Policy, opts ...Option) *Bus[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if policy.Conflate {
		policy.Capacity = 1
	}
	if policy.Capacity < 1 {
		policy.Capacity = 1
	}
	return &Bus[T]{
		policy: policy,
		replay: o.replay,
	}
}

// Policy returns the policy applied to every subscription.
func (b *Bus[T]) Policy() Policy {
	return b.policy
}

// Subscribe registers a new subscription bound to ctx.
//
// With WithReplay, the latest value is queued in the same critical section
// that registers the subscription: no publication can fall between the
// replayed value and the first live one.
func (b *Bus[T]) Subscribe(ctx context.Context) *Subscription[T] {
	sctx, cancel := context.WithCancel(ctx)
	s := newSubscription(b, b.policy, cancel)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.close()
		go s.pump(sctx)
		return s
	}
	if b.replay && b.hasLatest {
		s.offer(b.latest)
	}
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	go s.pump(sctx)
	return s
}

// Offer publishes v without blocking.
// Returns false if at least one subscription rejected the value because its
// queue was full. Conflating subscriptions never reject.
// Offer on a closed bus returns false.
func (b *Bus[T]) Offer(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.remember(v)

	accepted := true
	for _, s := range b.subs {
		if !s.offer(v) {
			accepted = false
		}
	}
	return accepted
}

// Send publishes v, waiting for room in full subscriptions when the policy
// overflow is Block. Subscriptions with room receive v before Send starts
// waiting on the full ones. Under any other policy Send behaves like Offer
// and reports rejection as ErrRejected.
//
// A value that is still waiting for room may be overtaken in that
// subscription by values other publishers offer meanwhile.
func (b *Bus[T]) Send(ctx context.Context, v T) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.remember(v)

	var full []*Subscription[T]
	for _, s := range b.subs {
		if !s.offer(v) {
			full = append(full, s)
		}
	}
	b.mu.Unlock()

	if len(full) == 0 {
		return nil
	}
	if b.policy.Overflow != Block {
		return ErrRejected
	}
	for _, s := range full {
		if err := s.put(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// ErrRejected is returned by Send when a non-blocking subscription was full.
var ErrRejected = errors.New("value rejected by a full subscription")

// Latest returns the most recently published value when replay is enabled.
func (b *Bus[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLatest
}

// Len returns the number of active subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops accepting publications. Subscriptions deliver what they already
// hold and then close their channels. Close is idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// remember stores v for replay. Caller holds b.mu.
func (b *Bus[T]) remember(v T) {
	if b.replay {
		b.latest = v
		b.hasLatest = true
	}
}

// remove unregisters s. Called by the subscription pump on exit.
func (b *Bus[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, cur := range b.subs {
		if cur == s {
			last := len(b.subs) - 1
			b.subs[i] = b.subs[last]
			b.subs[last] = nil
			b.subs = b.subs[:last]
			return
		}
	}
}
