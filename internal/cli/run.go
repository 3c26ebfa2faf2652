package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pedroql/mvflow/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ShowTrace bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run one scenario against the reference counter engine",
		Long: `Run a scenario file and check its expectations.

The scenario drives a fresh reference counter engine: views are attached
and cancelled, actions are dispatched from views or external sources, and
the observed dispatches, mutations and renders form the trace.

Exit codes:
  0 - Expectations held
  1 - An expectation failed or a step could not complete
  2 - Command error (missing or invalid file)

Example:
  mvflow run ./scenarios/counter_sequence.yaml
  mvflow run ./scenarios/view_cancel.yaml --trace`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOne(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ShowTrace, "trace", false, "print the observed trace")

	return cmd
}

func runOne(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		code := CodeScenarioLoad
		if isSchemaError(err) {
			code = CodeSchema
		}
		return formatter.Fail(ExitCommandError, code, "failed to load scenario", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	formatter.VerboseLog("Running scenario %s (%d steps)", scenario.Name, len(scenario.Steps))
	result, err := harness.Run(ctx, scenario, harness.WithLogger(opts.Logger()))
	if err != nil {
		return formatter.Fail(ExitFailure, CodeScenarioRun, "scenario did not complete", err)
	}

	var trace []byte
	if opts.ShowTrace {
		if trace, err = harness.MarshalTrace(result.Trace); err != nil {
			return fmt.Errorf("failed to marshal trace: %w", err)
		}
	}

	if err := formatter.Result(result.Pass, result, func(w io.Writer) {
		printScenarioOutcome(w, scenario.Name, result.Pass, result.Errors)
		if trace != nil {
			w.Write(trace)
		}
	}); err != nil {
		return err
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func printScenarioOutcome(w io.Writer, name string, pass bool, errs []string) {
	if pass {
		fmt.Fprintf(w, "✓ %s\n", name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", name)
	for _, e := range errs {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
