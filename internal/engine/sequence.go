package engine

import "sync/atomic"

// sequence hands out 1, 2, 3, ... to concurrent callers. Dispatches and
// StateCell versions each draw from their own sequence.
type sequence struct {
	n atomic.Int64
}

func (s *sequence) next() int64 { return s.n.Add(1) }

// last is the most recent value handed out, 0 before the first.
func (s *sequence) last() int64 { return s.n.Load() }
