// Package counter is a sample MVFlow application: a counter whose
// "add many" action runs a slow background job and shows toasts.
package counter

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pedroql/mvflow/internal/engine"
)

// State is what the counter screen renders.
type State struct {
	Value                int `json:"value"`
	BackgroundOperations int `json:"background_operations"`
}

// ShowProgress reports whether a background job is running.
func (s State) ShowProgress() bool {
	return s.BackgroundOperations > 0
}

func (s State) String() string {
	return fmt.Sprintf("State(value=%d, backgroundOperations=%d)", s.Value, s.BackgroundOperations)
}

// Action is a user intent on the counter screen.
type Action int

const (
	AddOne Action = iota + 1
	AddMany
	Reset
)

var actionNames = map[Action]string{
	AddOne:  "AddOne",
	AddMany: "AddMany",
	Reset:   "Reset",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// MarshalText encodes the action by name.
func (a Action) MarshalText() ([]byte, error) {
	if _, ok := actionNames[a]; !ok {
		return nil, fmt.Errorf("unknown counter action %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText accepts anything ParseAction does.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction accepts action names case-insensitively, plus the short
// forms "one", "many" and "reset".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "addone", "one", "+":
		return AddOne, nil
	case "addmany", "many":
		return AddMany, nil
	case "reset", "0":
		return Reset, nil
	default:
		return 0, fmt.Errorf("unknown counter action %q", s)
	}
}

// MutationKind identifies a Mutation.
type MutationKind string

const (
	Increment             MutationKind = "Increment"
	BackgroundJobStarted  MutationKind = "BackgroundJobStarted"
	BackgroundJobFinished MutationKind = "BackgroundJobFinished"
	ResetValue            MutationKind = "Reset"
)

// Mutation is one change to State.
type Mutation struct {
	Kind   MutationKind `json:"kind"`
	Amount int          `json:"amount,omitempty"`
}

func (m Mutation) String() string {
	if m.Kind == Increment {
		return fmt.Sprintf("Increment(%d)", m.Amount)
	}
	return string(m.Kind)
}

// IncrementBy returns an Increment mutation.
func IncrementBy(n int) Mutation {
	return Mutation{Kind: Increment, Amount: n}
}

// Effect is a one-off notification for the screen.
type Effect struct {
	Toast string `json:"toast"`
}

func (e Effect) String() string {
	return fmt.Sprintf("ShowToast(%q)", e.Toast)
}

// Toast messages.
const (
	ToastStarted  = "This might take a while..."
	ToastFinished = "Background job finished"
)

// Reduce applies m to s. Reset keeps the background job count.
func Reduce(s State, m Mutation) State {
	switch m.Kind {
	case Increment:
		s.Value += m.Amount
	case BackgroundJobStarted:
		s.BackgroundOperations++
	case BackgroundJobFinished:
		s.BackgroundOperations--
	case ResetValue:
		s.Value = 0
	}
	return s
}

// Delay picks how long a background step takes, between lo and hi.
type Delay func(lo, hi time.Duration) time.Duration

// RandomDelay picks uniformly in [lo, hi).
func RandomDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// NoDelay makes background steps instantaneous.
func NoDelay(time.Duration, time.Duration) time.Duration {
	return 0
}

// ScaledDelay wraps d and multiplies its result by factor.
func ScaledDelay(d Delay, factor float64) Delay {
	return func(lo, hi time.Duration) time.Duration {
		return time.Duration(float64(d(lo, hi)) * factor)
	}
}

// NewHandler returns the counter Handler using delay for background steps.
func NewHandler(delay Delay) engine.Handler[State, Action, Mutation, Effect] {
	if delay == nil {
		delay = RandomDelay
	}
	return func(ctx context.Context, _ State, action Action, effects engine.EffectSink[Effect]) iter.Seq2[Mutation, error] {
		switch action {
		case AddOne:
			return engine.Emit(IncrementBy(1))
		case Reset:
			return engine.Emit(Mutation{Kind: ResetValue})
		case AddMany:
			return addMany(ctx, delay, effects)
		default:
			return engine.Fail[Mutation](fmt.Errorf("unknown counter action %v", action))
		}
	}
}

func addMany(ctx context.Context, delay Delay, effects engine.EffectSink[Effect]) iter.Seq2[Mutation, error] {
	type step struct {
		wait     [2]time.Duration
		mutation Mutation
	}
	steps := []step{
		{[2]time.Duration{50 * time.Millisecond, 500 * time.Millisecond}, IncrementBy(1)},
		{[2]time.Duration{500 * time.Millisecond, time.Second}, IncrementBy(2)},
		{[2]time.Duration{1500 * time.Millisecond, 4 * time.Second}, IncrementBy(1)},
	}

	return func(yield func(Mutation, error) bool) {
		if !yield(Mutation{Kind: BackgroundJobStarted}, nil) {
			return
		}
		// Toasts are best effort; the sink logs a rejection and the job goes on.
		_ = effects.Send(ctx, Effect{Toast: ToastStarted})

		for _, s := range steps {
			if err := sleep(ctx, delay(s.wait[0], s.wait[1])); err != nil {
				// A started job is always balanced by a finish.
				if yield(Mutation{Kind: BackgroundJobFinished}, nil) {
					yield(Mutation{}, err)
				}
				return
			}
			if !yield(s.mutation, nil) {
				return
			}
		}

		if !yield(Mutation{Kind: BackgroundJobFinished}, nil) {
			return
		}
		effects.Offer(Effect{Toast: ToastFinished})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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

// New creates a counter engine starting at initial.
func New(ctx context.Context, initial State, delay Delay, opts ...engine.Option) *engine.Engine[State, Action, Mutation, Effect] {
	return engine.New(ctx, initial, NewHandler(delay), Reduce, opts...)
}
