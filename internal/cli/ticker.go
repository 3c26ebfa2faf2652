package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/pedroql/mvflow/internal/engine"
	"github.com/pedroql/mvflow/internal/lifecycle"
)

// TickerOptions holds flags for the ticker command.
type TickerOptions struct {
	*RootOptions
	Interval time.Duration `validate:"gt=0"`
	Count    int           `validate:"gte=0"`
}

// NewTickerCommand creates the ticker command.
func NewTickerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TickerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ticker",
		Short: "Run the lifecycle sample",
		Long: `Run the lifecycle sample: a counter that advances on every tick of a
ticker owned by the engine instance.

The view starts the counter when it attaches. The command stops after
--count rendered ticks, or on Ctrl-C when --count is 0.

Example:
  mvflow ticker --interval 500ms --count 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicker(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Second, "tick interval")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many ticks (0 runs until interrupted)")

	return cmd
}

func runTicker(opts *TickerOptions, cmd *cobra.Command) error {
	if err := validate.Struct(opts); err != nil {
		return WrapExitError(ExitCommandError, "invalid ticker options", err)
	}
	log := opts.Logger()

	ctx, stop := signalContext(cmd)
	defer stop()

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()

	flow, err := lifecycle.New(engineCtx, opts.Interval,
		lifecycle.WithEngineOptions(
			engine.WithSlog(log),
			engine.WithLogger(func(msg string) { log.Debug(msg) }),
		),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start ticker", err)
	}

	view := &tickerView{
		out:   &lockedWriter{w: cmd.OutOrStdout()},
		count: opts.Count,
		done:  make(chan struct{}),
	}
	viewCtx, detach := context.WithCancel(ctx)
	flow.AttachView(viewCtx, view, []lifecycle.Action{lifecycle.StartCounter}, nil)

	select {
	case <-ctx.Done():
	case <-view.done:
	case <-flow.Done():
	}

	detach()
	flow.Close()
	stopEngine()
	flow.Wait()
	return nil
}

// tickerView prints each counter value and reports when count is reached.
type tickerView struct {
	out   io.Writer
	count int
	done  chan struct{}
	once  sync.Once
}

func (v *tickerView) Render(s lifecycle.State) {
	fmt.Fprintf(v.out, "counter=%d\n", s.Counter)
	if v.count > 0 && s.Counter >= v.count {
		v.once.Do(func() { close(v.done) })
	}
}

func (v *tickerView) Actions(ctx context.Context) <-chan lifecycle.Action {
	return make(chan lifecycle.Action)
}
