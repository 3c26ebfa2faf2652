package testutil

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/pedroql/mvflow/internal/engine"
)

// CounterState is the State of the reference counter.
type CounterState struct {
	Counter int `json:"counter"`
}

func (s CounterState) String() string {
	return fmt.Sprintf("State(%d)", s.Counter)
}

// CounterAction is an Action of the reference counter.
type CounterAction string

const (
	// Action1 adds one.
	Action1 CounterAction = "Action1"
	// Action2 doubles, then subtracts one.
	Action2 CounterAction = "Action2"
)

// CounterMutation is a Mutation of the reference counter.
type CounterMutation struct {
	Op     string `json:"op"`
	Amount int    `json:"amount"`
}

// Increment adds amount to the counter.
func Increment(amount int) CounterMutation {
	return CounterMutation{Op: "Increment", Amount: amount}
}

// Multiply multiplies the counter by amount.
func Multiply(amount int) CounterMutation {
	return CounterMutation{Op: "Multiply", Amount: amount}
}

func (m CounterMutation) String() string {
	return fmt.Sprintf("%s(%d)", m.Op, m.Amount)
}

// CounterDelays is how long the counter Handler waits before each Mutation
// it emits, per Action.
type CounterDelays struct {
	Action1 time.Duration
	Action2 time.Duration
}

// DefaultCounterDelays are the delays the reference counter normally uses.
var DefaultCounterDelays = CounterDelays{
	Action1: 50 * time.Millisecond,
	Action2: 40 * time.Millisecond,
}

// CounterReducer applies Increment and Multiply arithmetically.
func CounterReducer(s CounterState, m CounterMutation) CounterState {
	switch m.Op {
	case "Increment":
		return CounterState{Counter: s.Counter + m.Amount}
	case "Multiply":
		return CounterState{Counter: s.Counter * m.Amount}
	default:
		panic(fmt.Sprintf("unknown mutation %q", m.Op))
	}
}

// CounterHandler maps Action1 to [Increment(1)] and Action2 to
// [Multiply(2), Increment(-1)], waiting the configured delay before each.
func CounterHandler(delays CounterDelays) engine.SimpleHandler[CounterState, CounterAction, CounterMutation] {
	return func(ctx context.Context, _ CounterState, action CounterAction) iter.Seq2[CounterMutation, error] {
		switch action {
		case Action1:
			return Delayed(ctx, delays.Action1, Increment(1))
		case Action2:
			return Delayed(ctx, delays.Action2, Multiply(2), Increment(-1))
		default:
			return engine.Fail[CounterMutation](fmt.Errorf("unknown action %q", action))
		}
	}
}

// NewCounter creates a reference counter engine starting at 0.
func NewCounter(ctx context.Context, delays CounterDelays, opts ...engine.Option) *engine.Engine[CounterState, CounterAction, CounterMutation, engine.NoEffect] {
	return engine.NewSimple(ctx, CounterState{}, CounterHandler(delays), CounterReducer, opts...)
}

// Delayed yields each Mutation after waiting d. It ends with ctx's error if
// ctx ends while waiting.
func Delayed[M any](ctx context.Context, d time.Duration, ms ...M) iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		for _, m := range ms {
			if err := Sleep(ctx, d); err != nil {
				var zero M
				yield(zero, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Sleep waits for d or until ctx ends. A zero d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
