package testutil

import (
	"context"
	"sync"
)

// CollectingEffectSink stores every Effect it receives. Use it to call a
// Handler directly in tests.
type CollectingEffectSink[E any] struct {
	mu   sync.Mutex
	seen []E

	// Reject makes Offer refuse Effects.
	Reject bool
}

// Send implements engine.EffectSink.
func (s *CollectingEffectSink[E]) Send(_ context.Context, effect E) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, effect)
	return nil
}

// Offer implements engine.EffectSink.
func (s *CollectingEffectSink[E]) Offer(effect E) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Reject {
		return false
	}
	s.seen = append(s.seen, effect)
	return true
}

// Effects returns a copy of the collected Effects.
func (s *CollectingEffectSink[E]) Effects() []E {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]E, len(s.seen))
	copy(out, s.seen)
	return out
}
