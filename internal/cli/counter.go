package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/pedroql/mvflow/internal/counter"
	"github.com/pedroql/mvflow/internal/engine"
	"github.com/pedroql/mvflow/internal/recorder"
	"github.com/pedroql/mvflow/internal/source"
	"github.com/pedroql/mvflow/internal/store"
)

type counterEngine = engine.Engine[counter.State, counter.Action, counter.Mutation, counter.Effect]

// CounterOptions holds flags for the counter command.
type CounterOptions struct {
	*RootOptions
	Database    string
	Label       string  `validate:"required"`
	ActionsFile string
	DelayScale  float64 `validate:"gte=0"`
	Initial     int

	// IDs overrides the dispatch ID generator (for testing).
	IDs engine.DispatchIDGenerator
}

// NewCounterCommand creates the counter command.
func NewCounterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CounterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Drive the counter sample from stdin",
		Long: `Run the counter sample engine with a console view.

Each line read from stdin is an action: AddOne, AddMany or Reset. Every
rendered state and every toast effect is printed. The command exits once
stdin is exhausted and all work has settled, or on Ctrl-C.

With --actions-file, lines appended to the file are dispatched as an
external action source and the command runs until interrupted.

Example:
  printf 'AddOne\nAddMany\n' | mvflow counter --delay-scale 0
  mvflow counter --db ./journal.db --label demo
  mvflow counter --actions-file ./actions.txt < /dev/null`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCounter(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the session to this SQLite database")
	cmd.Flags().StringVar(&opts.Label, "label", "counter", "session label when recording")
	cmd.Flags().StringVar(&opts.ActionsFile, "actions-file", "", "also dispatch actions appended to this file")
	cmd.Flags().Float64Var(&opts.DelayScale, "delay-scale", 1, "multiplier for background job delays (0 disables them)")
	cmd.Flags().IntVar(&opts.Initial, "initial", 0, "initial counter value")

	return cmd
}

func runCounter(opts *CounterOptions, cmd *cobra.Command) error {
	if err := validate.Struct(opts); err != nil {
		return WrapExitError(ExitCommandError, "invalid counter options", err)
	}
	log := opts.Logger()
	out := &lockedWriter{w: cmd.OutOrStdout()}

	ctx, stop := signalContext(cmd)
	defer stop()

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()

	delay := counter.Delay(counter.NoDelay)
	if opts.DelayScale > 0 {
		delay = counter.ScaledDelay(counter.RandomDelay, opts.DelayScale)
	}
	engineOpts := []engine.Option{
		engine.WithSlog(log),
		engine.WithLogger(func(msg string) { log.Debug(msg) }),
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithDispatchIDs(opts.IDs))
	}
	eng := counter.New(engineCtx, counter.State{Value: opts.Initial}, delay, engineOpts...)

	var rec *recorder.Recorder
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}()
		rec, err = recorder.Start(ctx, st, eng,
			recorder.WithLabel(opts.Label),
			recorder.WithLogger(log),
		)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start recording", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "recording session %s\n", rec.Session().ID)
	}

	// Observers use ctx so their streams drain when the engine stops.
	var printers sync.WaitGroup
	printers.Add(1)
	go func() {
		defer printers.Done()
		for e := range eng.ObserveEffects(ctx) {
			fmt.Fprintf(out, "toast: %s\n", e.Toast)
		}
	}()

	var lastSeq atomic.Int64
	printers.Add(1)
	go func() {
		defer printers.Done()
		for d := range eng.ObserveActionsWithState(ctx) {
			lastSeq.Store(d.Seq)
		}
	}()

	if opts.ActionsFile != "" {
		actions, err := source.NewFileSource(opts.ActionsFile, counter.ParseAction).
			WithLogger(log).
			Watch(engineCtx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch actions file", err)
		}
		eng.AddExternalActionSource(actions, nil)
	}

	viewCtx, detach := context.WithCancel(ctx)
	view := newConsoleView(cmd.InOrStdin(), out, log)
	eng.AttachView(viewCtx, view, nil, nil)

	awaitCounter(ctx, opts, eng, view, &lastSeq)

	detach()
	stopEngine()
	eng.Wait()
	printers.Wait()

	if rec != nil {
		if rerr := rec.Wait(); rerr != nil {
			return WrapExitError(ExitFailure, "recording incomplete", rerr)
		}
	}
	if engine.IsReducerError(eng.Err()) {
		return WrapExitError(ExitFailure, "engine halted", eng.Err())
	}
	return nil
}

// awaitCounter blocks until stdin is exhausted, every dispatched action has
// been handled and the view shows the current state. With an actions file it
// blocks until ctx ends.
func awaitCounter(ctx context.Context, opts *CounterOptions, eng *counterEngine, view *consoleView, lastSeq *atomic.Int64) {
	if opts.ActionsFile != "" {
		select {
		case <-ctx.Done():
		case <-eng.Done():
		}
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-eng.Done():
		return
	case <-view.exhausted:
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		settled := lastSeq.Load() >= view.sent.Load() && eng.InFlight() == 0
		if last, ok := view.last(); settled && ok && last == eng.CurrentState() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-eng.Done():
			return
		case <-ticker.C:
		}
	}
}

// consoleView renders counter states as text lines and reads actions, one
// per line, from its input.
type consoleView struct {
	in  io.Reader
	out io.Writer
	log *slog.Logger

	sent      atomic.Int64
	exhausted chan struct{}

	mu       sync.Mutex
	rendered *counter.State
}

func newConsoleView(in io.Reader, out io.Writer, log *slog.Logger) *consoleView {
	return &consoleView{
		in:        in,
		out:       out,
		log:       log,
		exhausted: make(chan struct{}),
	}
}

func (v *consoleView) Render(s counter.State) {
	if s.ShowProgress() {
		fmt.Fprintf(v.out, "value=%d (background jobs: %d)\n", s.Value, s.BackgroundOperations)
	} else {
		fmt.Fprintf(v.out, "value=%d\n", s.Value)
	}

	v.mu.Lock()
	v.rendered = &s
	v.mu.Unlock()
}

func (v *consoleView) last() (counter.State, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rendered == nil {
		return counter.State{}, false
	}
	return *v.rendered, true
}

func (v *consoleView) Actions(ctx context.Context) <-chan counter.Action {
	ch := make(chan counter.Action)
	go func() {
		defer close(v.exhausted)
		sc := bufio.NewScanner(v.in)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			a, err := counter.ParseAction(line)
			if err != nil {
				v.log.Warn("ignoring input", "line", line, "error", err)
				continue
			}
			select {
			case ch <- a:
				v.sent.Add(1)
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			v.log.Warn("reading input failed", "error", err)
		}
	}()
	return ch
}
