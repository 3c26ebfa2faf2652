package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is one reader's cursor into a Bus.
//
// Values are queued per subscription and moved onto C by a dedicated
// goroutine. That goroutine holds at most one value while the reader is busy,
// so a conflating reader that falls behind still sees the value it was
// handed first and then the newest one.
type Subscription[T any] struct {
	bus    *Bus[T]
	policy Policy
	cancel context.CancelFunc

	mu     sync.Mutex
	items  []T
	closed bool

	signal chan struct{} // value available (buffered, size 1)
	space  chan struct{} // room available (buffered, size 1)
	done   chan struct{} // closed when the subscription stops accepting values
	out    chan T

	delivered   atomic.Uint64
	dropped     atomic.Uint64
	overwritten atomic.Uint64
}

func newSubscription[T any](b *Bus[T], policy Policy, cancel context.CancelFunc) *Subscription[T] {
	return &Subscription[T]{
		bus:    b,
		policy: policy,
		cancel: cancel,
		items:  make([]T, 0, min(policy.Capacity, 64)),
		signal: make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan T),
	}
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Cancel ends the subscription. Undelivered values are discarded.
func (s *Subscription[T]) Cancel() {
	s.cancel()
}

// Delivered returns how many values were handed to the reader.
func (s *Subscription[T]) Delivered() uint64 {
	return s.delivered.Load()
}

// Dropped returns how many values were rejected because the queue was full.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Overwritten returns how many undelivered values conflation replaced.
func (s *Subscription[T]) Overwritten() uint64 {
	return s.overwritten.Load()
}

// Pending returns the number of values queued but not yet handed to the
// delivery goroutine.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// offer places v without blocking. A closed subscription silently accepts.
func (s *Subscription[T]) offer(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	switch {
	case s.policy.Conflate && len(s.items) > 0:
		s.items[0] = v
		s.overwritten.Add(1)
	case len(s.items) >= s.policy.Capacity:
		s.dropped.Add(1)
		return false
	default:
		s.items = append(s.items, v)
	}

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

// put waits until v fits, the subscription ends or ctx is done.
func (s *Subscription[T]) put(ctx context.Context, v T) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil
		}
		if len(s.items) < s.policy.Capacity {
			s.items = append(s.items, v)
			select {
			case s.signal <- struct{}{}:
			default:
			}
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-s.space:
		}
	}
}

// take removes the front value. The bool is false when the queue is empty;
// closed reports whether no further values will arrive.
func (s *Subscription[T]) take() (v T, ok bool, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return v, false, s.closed
	}

	v = s.items[0]
	var zero T
	s.items[0] = zero
	if len(s.items) == 1 {
		s.items = s.items[:0]
	} else {
		s.items = s.items[1:]
	}

	select {
	case s.space <- struct{}{}:
	default:
	}
	return v, true, false
}

// close stops accepting values. Queued values are still delivered.
func (s *Subscription[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.signal)
}

// discard drops everything still queued.
func (s *Subscription[T]) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.items)
	s.items = s.items[:0]
}

func (s *Subscription[T]) pump(ctx context.Context) {
	defer close(s.out)
	defer s.cancel()
	defer s.discard()
	defer s.close()
	defer s.bus.remove(s)

	for {
		v, ok, closed := s.take()
		if !ok {
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-s.signal:
			}
			continue
		}

		select {
		case s.out <- v:
			s.delivered.Add(1)
		case <-ctx.Done():
			return
		}
	}
}
