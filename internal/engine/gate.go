package engine

import (
	"fmt"
	"sync"
)

// gate serializes Reducer calls.
//
// The lock spans read, reduce, replace and the mutation publication so that
// no two callers fold against the same State and mutation observers see
// Mutations in the order they were applied.
type gate[S, M any] struct {
	mu      sync.Mutex
	cell    *StateCell[S]
	reducer Reducer[S, M]
	failed  error

	// applied is invoked under the lock after each successful fold.
	applied func(mutation M, next S, version int64)
}

func newGate[S, M any](cell *StateCell[S], reducer Reducer[S, M], applied func(M, S, int64)) *gate[S, M] {
	return &gate[S, M]{
		cell:    cell,
		reducer: reducer,
		applied: applied,
	}
}

// apply folds m into the current State and returns the result.
// Once the Reducer has panicked the gate refuses every later Mutation.
func (g *gate[S, M]) apply(m M) (next S, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failed != nil {
		return next, g.failed
	}

	next, err = g.reduce(g.cell.Read(), m)
	if err != nil {
		g.failed = err
		return next, err
	}

	version := g.cell.Replace(next)
	if g.applied != nil {
		g.applied(m, next, version)
	}
	return next, nil
}

func (g *gate[S, M]) reduce(s S, m M) (next S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewReducerError(fmt.Sprintf("%v", m), r)
		}
	}()
	return g.reducer(s, m), nil
}

// err reports the Reducer failure that halted the gate, if any.
func (g *gate[S, M]) err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}
