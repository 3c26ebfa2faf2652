package testutil

import (
	"context"
	"sync"
	"time"
)

// ScriptedAction is an Action a FakeView emits After the given delay
// (measured from the previous action).
type ScriptedAction[A any] struct {
	Action A
	After  time.Duration
}

// FakeView records every rendered State and emits scripted Actions.
//
// Actions may also be pushed with Emit while the view is attached.
type FakeView[S, A any] struct {
	mu      sync.Mutex
	states  []S
	script  []ScriptedAction[A]
	live    chan A
	renders chan struct{}

	// OnRender, when set, runs inside Render after the State is recorded.
	OnRender func(S)
}

// NewFakeView creates a view that emits script once Actions is called.
func NewFakeView[S, A any](script ...ScriptedAction[A]) *FakeView[S, A] {
	return &FakeView[S, A]{
		script:  script,
		live:    make(chan A, 64),
		renders: make(chan struct{}, 1),
	}
}

// Render implements engine.View.
func (v *FakeView[S, A]) Render(state S) {
	v.mu.Lock()
	v.states = append(v.states, state)
	hook := v.OnRender
	v.mu.Unlock()

	select {
	case v.renders <- struct{}{}:
	default:
	}
	if hook != nil {
		hook(state)
	}
}

// Actions implements engine.View.
func (v *FakeView[S, A]) Actions(ctx context.Context) <-chan A {
	out := make(chan A)
	go func() {
		defer close(out)
		for _, step := range v.script {
			if err := Sleep(ctx, step.After); err != nil {
				return
			}
			select {
			case out <- step.Action:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case a := <-v.live:
				select {
				case out <- a:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Emit queues a for the attached view's Action stream.
func (v *FakeView[S, A]) Emit(a A) {
	v.live <- a
}

// States returns a copy of the rendered States.
func (v *FakeView[S, A]) States() []S {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]S, len(v.states))
	copy(out, v.states)
	return out
}

// Last returns the most recent rendered State.
func (v *FakeView[S, A]) Last() (S, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.states) == 0 {
		var zero S
		return zero, false
	}
	return v.states[len(v.states)-1], true
}

// WaitFor blocks until a rendered State satisfies match or ctx ends.
func (v *FakeView[S, A]) WaitFor(ctx context.Context, match func(S) bool) bool {
	for {
		if s, ok := v.Last(); ok && match(s) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-v.renders:
		case <-time.After(5 * time.Millisecond):
		}
	}
}
