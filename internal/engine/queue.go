package engine

import "sync"

// envelope carries one ingested Action to the dispatch loop.
type envelope[A any] struct {
	action A
	logger Logger
	source string
}

// inbox is a thread-safe FIFO between Action sources and the dispatch loop.
//
// The inbox is unbounded so that a source goroutine never waits on Handler
// progress: enqueuing only appends under the lock.
//
// The signal channel (buffered, size 1) coalesces wakeups and is closed by
// Close, which lets the dispatch loop wait on it together with its context.
type inbox[A any] struct {
	mu      sync.Mutex
	pending []envelope[A]
	closed  bool
	signal  chan struct{}
}

func newInbox[A any]() *inbox[A] {
	return &inbox[A]{
		pending: make([]envelope[A], 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false if the inbox is closed.
func (q *inbox[A]) Enqueue(e envelope[A]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front envelope without blocking.
func (q *inbox[A]) TryDequeue() (envelope[A], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return envelope[A]{}, false
	}

	e := q.pending[0]
	// Release the slot so the Action can be collected.
	q.pending[0] = envelope[A]{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return e, true
}

// Wait returns a channel that signals when envelopes may be available:
//
//	select {
//	case <-ctx.Done():
//	    return
//	case <-q.Wait():
//	    // TryDequeue
//	}
func (q *inbox[A]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued envelopes.
func (q *inbox[A]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects further envelopes and wakes the waiter.
func (q *inbox[A]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
