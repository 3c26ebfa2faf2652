package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pedroql/mvflow/internal/harness"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	PrintSchema bool
}

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML files against the embedded CUE schema.

Also checks what the schema cannot: views are attached before they are
used and names are not reused. Directories are expanded to the *.yaml
files they contain.

Examples:
  mvflow validate ./scenarios
  mvflow validate ./scenarios/counter_sequence.yaml --format json
  mvflow validate --schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.PrintSchema {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.PrintSchema, "schema", false, "print the scenario schema and exit")

	return cmd
}

func runValidate(opts *ValidateOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.PrintSchema {
		_, err := io.WriteString(cmd.OutOrStdout(), harness.SchemaSource())
		return err
	}

	paths, err := expandScenarioPaths(args)
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeScenarioLoad, "failed to list scenarios", err)
	}
	formatter.VerboseLog("Validating %d scenario file(s)", len(paths))

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		fv := FileValidation{Path: path, Valid: true}
		if _, err := harness.LoadScenario(path); err != nil {
			fv.Valid = false
			fv.Code = CodeScenarioLoad
			if isSchemaError(err) {
				fv.Code = CodeSchema
			}
			fv.Error = err.Error()
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if err := formatter.Result(result.Valid, result, func(w io.Writer) {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(w, "✓ %s\n", fv.Path)
				continue
			}
			fmt.Fprintf(w, "✗ %s\n", fv.Path)
			fmt.Fprintf(w, "  Error [%s]: %s\n", fv.Code, fv.Error)
		}
	}); err != nil {
		return err
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "one or more scenarios are invalid")
	}
	return nil
}

// expandScenarioPaths replaces each directory argument with the *.yaml
// files directly inside it, sorted.
func expandScenarioPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.yaml"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no scenario files found in %s", arg)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func isSchemaError(err error) bool {
	return errors.Is(err, harness.ErrSchema)
}
