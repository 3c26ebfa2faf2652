package cli

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pedroql/mvflow/internal/harness"
)

// TestOptions configures a test run over a scenarios directory.
type TestOptions struct {
	*RootOptions
	GoldenDir string
	Update    bool
	Filter    string
}

// Golden comparison outcomes.
const (
	GoldenMatch    = "match"
	GoldenMismatch = "mismatch"
	GoldenAbsent   = "absent"
	GoldenUpdated  = "updated"
)

// ScenarioOutcome is the verdict for one scenario file.
type ScenarioOutcome struct {
	File   string   `json:"file"`
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteOutcome aggregates every ScenarioOutcome of a test run.
type SuiteOutcome struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

func (s *SuiteOutcome) add(o ScenarioOutcome) {
	s.Scenarios = append(s.Scenarios, o)
	s.Total++
	if o.Pass {
		s.Passed++
	} else {
		s.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario and compare traces with golden files",
		Long: `Run all scenario files under a directory.

Each scenario passes when its expectations hold and, if a golden file
named after the scenario exists, its trace matches the golden file byte
for byte. Golden files live in <scenarios-dir>/golden unless --golden
says otherwise.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  mvflow test ./scenarios
  mvflow test ./scenarios --filter "view_*"
  mvflow test ./scenarios --update
  mvflow test ./scenarios --golden ./golden --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory (default <scenarios-dir>/golden)")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, "not a scenarios directory: "+scenariosDir)
	}
	goldenDir := cmp.Or(opts.GoldenDir, filepath.Join(scenariosDir, "golden"))

	files, err := scenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot select scenarios", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	suite := SuiteOutcome{Scenarios: []ScenarioOutcome{}}
	for _, file := range files {
		suite.add(runScenario(ctx, opts, file, goldenDir))
	}

	err = opts.formatter(cmd).Result(suite.Failed == 0, suite, func(w io.Writer) {
		if suite.Total == 0 {
			fmt.Fprintln(w, "No scenarios found.")
			return
		}
		for _, o := range suite.Scenarios {
			printScenarioOutcome(w, o.Name, o.Pass, o.Errors)
		}
		fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)
	})
	if err != nil {
		return err
	}
	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", suite.Failed, suite.Total))
	}
	return nil
}

// scenarioFiles lists the .yaml and .yml files under dir in lexical order.
// A non-empty filter is a glob matched against the file name without its
// extension.
func scenarioFiles(dir, filter string) ([]string, error) {
	if _, err := filepath.Match(filter, ""); err != nil {
		return nil, fmt.Errorf("filter %q: %w", filter, err)
	}
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		stem := strings.TrimSuffix(d.Name(), ext)
		if ok, _ := filepath.Match(filter, stem); filter == "" || ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// runScenario runs one scenario file and compares its trace with
// goldenDir/<name>.golden when that file exists.
func runScenario(ctx context.Context, opts *TestOptions, file, goldenDir string) ScenarioOutcome {
	o := ScenarioOutcome{File: file, Name: filepath.Base(file)}
	failed := func(format string, args ...any) ScenarioOutcome {
		o.Pass = false
		o.Errors = append(o.Errors, fmt.Sprintf(format, args...))
		return o
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed("failed to load scenario: %v", err)
	}
	o.Name = scenario.Name

	result, err := harness.Run(ctx, scenario, harness.WithLogger(opts.Logger()))
	if err != nil {
		return failed("execution failed: %v", err)
	}
	trace, err := harness.MarshalTrace(result.Trace)
	if err != nil {
		return failed("cannot encode trace: %v", err)
	}
	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")

	if opts.Update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			return failed("cannot create %s: %v", goldenDir, err)
		}
		if err := os.WriteFile(goldenPath, trace, 0o644); err != nil {
			return failed("cannot write %s: %v", goldenPath, err)
		}
		o.Pass, o.Golden = true, GoldenUpdated
		return o
	}

	o.Pass, o.Errors = result.Pass, result.Errors
	golden, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		o.Golden = GoldenAbsent
	case err != nil:
		return failed("cannot read %s: %v", goldenPath, err)
	case bytes.Equal(golden, trace):
		o.Golden = GoldenMatch
	default:
		o.Golden = GoldenMismatch
		return failed("trace does not match golden file (run with --update to regenerate)")
	}
	return o
}
