package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pedroql/mvflow/internal/engine"
	"github.com/pedroql/mvflow/internal/testutil"
)

type (
	counterState    = testutil.CounterState
	counterAction   = testutil.CounterAction
	counterMutation = testutil.CounterMutation
	counterEngine   = engine.Engine[counterState, counterAction, counterMutation, engine.NoEffect]
)

// Option configures a run.
type Option func(*runOptions)

type runOptions struct {
	log *slog.Logger
}

// WithLogger sets the structured logger handed to the engine. By default
// engine logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Harness executes one scenario against a fresh reference counter engine.
type Harness struct {
	scenario *Scenario
	ctx      context.Context
	eng      *counterEngine
	stop     context.CancelFunc
	logger   *testutil.RecordingLogger
	timeout  time.Duration

	views map[string]*attachedView

	mu         sync.Mutex
	dispatches []DispatchEvent
	mutations  []string
	submitted  int

	collectors sync.WaitGroup
	closeOnce  sync.Once
}

type attachedView struct {
	view   *testutil.FakeView[counterState, counterAction]
	cancel context.CancelFunc
	active bool
}

// Run executes a scenario and returns the result.
//
// Each run uses its own engine, with fixed dispatch IDs ("d-1", "d-2", ...)
// so traces are reproducible. An error is returned when a step cannot
// complete (for example a wait times out); unmet expectations are reported
// in the Result instead.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	engineCtx, stop := context.WithCancel(ctx)
	logger := &testutil.RecordingLogger{}
	delays := testutil.CounterDelays{
		Action1: scenario.Delays.Action1.Std(),
		Action2: scenario.Delays.Action2.Std(),
	}
	eng := testutil.NewCounter(engineCtx, delays,
		engine.WithLogger(logger.Log),
		engine.WithSlog(o.log),
		engine.WithDispatchIDs(engine.NewFixedGenerator()),
	)

	h := &Harness{
		scenario: scenario,
		ctx:      ctx,
		eng:      eng,
		stop:     stop,
		logger:   logger,
		timeout:  scenario.timeout(),
		views:    map[string]*attachedView{},
	}
	defer h.close()

	h.observe()

	for i, step := range scenario.Steps {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Kind(), err)
		}
	}
	if err := h.settle(); err != nil {
		return nil, fmt.Errorf("final settle: %w", err)
	}

	h.close()

	result := NewResult(scenario.Name)
	h.fillTrace(&result.Trace)
	for _, msg := range EvaluateExpect(scenario.Expect, result.Trace) {
		result.AddError(msg)
	}
	return result, nil
}

// observe subscribes to the dispatch and mutation streams before any
// action can be submitted.
func (h *Harness) observe() {
	dispatches := h.eng.ObserveActionsWithState(h.ctx)
	mutations := h.eng.ObserveMutations(h.ctx)

	h.collectors.Add(2)
	go func() {
		defer h.collectors.Done()
		for d := range dispatches {
			h.mu.Lock()
			h.dispatches = append(h.dispatches, DispatchEvent{
				Seq:        d.Seq,
				DispatchID: d.DispatchID,
				Action:     string(d.Action),
				State:      d.State.Counter,
			})
			h.mu.Unlock()
		}
	}()
	go func() {
		defer h.collectors.Done()
		for m := range mutations {
			h.mu.Lock()
			h.mutations = append(h.mutations, m.String())
			h.mu.Unlock()
		}
	}()
}

func (h *Harness) execute(step Step) error {
	switch step.Kind() {
	case StepAttachView:
		return h.attachView(step.AttachView)
	case StepDispatch:
		return h.dispatch(step.Dispatch)
	case StepExternal:
		return h.external(step.External)
	case StepCancelView:
		return h.cancelView(step.CancelView)
	case StepSettle:
		return h.settle()
	case StepWait:
		return testutil.Sleep(h.ctx, step.Wait.Std())
	default:
		return fmt.Errorf("empty step")
	}
}

func (h *Harness) attachView(step *AttachViewStep) error {
	if _, ok := h.views[step.Name]; ok {
		return fmt.Errorf("view %q already attached", step.Name)
	}

	view := testutil.NewFakeView[counterState, counterAction]()
	vctx, cancel := context.WithCancel(h.ctx)
	h.views[step.Name] = &attachedView{view: view, cancel: cancel, active: true}

	initial := toActions(step.InitialActions)
	h.submit(len(initial))
	h.eng.AttachView(vctx, view, initial, h.logger.Log)

	if err := h.waitDispatched(h.timeout); err != nil {
		return err
	}
	return h.waitFor(h.timeout, fmt.Sprintf("first render of view %q", step.Name), func() bool {
		_, ok := view.Last()
		return ok
	})
}

func (h *Harness) dispatch(step *DispatchStep) error {
	v, ok := h.views[step.View]
	if !ok || !v.active {
		return fmt.Errorf("view %q is not attached", step.View)
	}
	h.submit(1)
	v.view.Emit(counterAction(step.Action))
	return h.waitDispatched(h.timeout)
}

func (h *Harness) external(step *ExternalStep) error {
	actions := toActions(step.Actions)
	ch := make(chan counterAction)
	interval := step.Interval.Std()

	h.submit(len(actions))
	h.eng.AddExternalActionSource(ch, h.logger.Log)

	go func() {
		defer close(ch)
		for i, a := range actions {
			if i > 0 && testutil.Sleep(h.ctx, interval) != nil {
				return
			}
			select {
			case ch <- a:
			case <-h.ctx.Done():
				return
			}
		}
	}()

	return h.waitDispatched(h.timeout + time.Duration(len(actions))*interval)
}

func (h *Harness) cancelView(name string) error {
	v, ok := h.views[name]
	if !ok || !v.active {
		return fmt.Errorf("view %q is not attached", name)
	}
	v.cancel()
	v.active = false
	return nil
}

// settle waits until every submitted action has been dispatched and
// handled, and every attached view has rendered the current state.
func (h *Harness) settle() error {
	if err := h.waitDispatched(h.timeout); err != nil {
		return err
	}
	return h.waitFor(h.timeout, "engine to settle", func() bool {
		if h.eng.InFlight() != 0 {
			return false
		}
		current := h.eng.CurrentState()
		for _, v := range h.views {
			if !v.active {
				continue
			}
			if last, ok := v.view.Last(); !ok || last != current {
				return false
			}
		}
		return true
	})
}

func (h *Harness) submit(n int) {
	h.mu.Lock()
	h.submitted += n
	h.mu.Unlock()
}

func (h *Harness) waitDispatched(timeout time.Duration) error {
	return h.waitFor(timeout, "actions to be dispatched", func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.dispatches) >= h.submitted
	})
}

func (h *Harness) waitFor(timeout time.Duration, what string, cond func() bool) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	for {
		if cond() {
			return nil
		}
		select {
		case <-h.ctx.Done():
			return h.ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timed out after %v waiting for %s", timeout, what)
		case <-tick.C:
		}
	}
}

// close detaches every view, stops the engine and waits for the
// collectors to drain what the engine published.
func (h *Harness) close() {
	h.closeOnce.Do(func() {
		for _, v := range h.views {
			v.cancel()
		}
		h.stop()
		h.eng.Wait()
		h.collectors.Wait()
	})
}

func (h *Harness) fillTrace(t *Trace) {
	h.mu.Lock()
	t.Dispatches = append(t.Dispatches, h.dispatches...)
	t.Mutations = append(t.Mutations, h.mutations...)
	h.mu.Unlock()

	for name, v := range h.views {
		states := v.view.States()
		counters := make([]int, len(states))
		for i, s := range states {
			counters[i] = s.Counter
		}
		t.Renders[name] = counters
	}

	for _, msg := range h.logger.Messages() {
		if strings.HasPrefix(msg, "Action ") && strings.Contains(msg, " failed: ") {
			t.HandlerFailures = append(t.HandlerFailures, msg)
		}
	}
	slices.Sort(t.HandlerFailures)

	t.Final = h.eng.CurrentState().Counter
	t.Version = h.eng.StateVersion()
}

func toActions(names []string) []counterAction {
	out := make([]counterAction, len(names))
	for i, n := range names {
		out[i] = counterAction(n)
	}
	return out
}
