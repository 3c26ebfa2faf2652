package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a harness run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Delays configures the reference counter handler.
	Delays Delays `yaml:"delays,omitempty"`

	// Timeout bounds every wait the harness performs. Defaults to 2s.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the engine stops.
	Expect Expect `yaml:"expect,omitempty"`
}

// Delays is how long the counter handler waits before each mutation.
type Delays struct {
	Action1 Duration `yaml:"action1,omitempty"`
	Action2 Duration `yaml:"action2,omitempty"`
}

// Step is exactly one of its fields.
type Step struct {
	AttachView *AttachViewStep `yaml:"attach_view,omitempty"`
	Dispatch   *DispatchStep   `yaml:"dispatch,omitempty"`
	External   *ExternalStep   `yaml:"external,omitempty"`
	CancelView string          `yaml:"cancel_view,omitempty"`
	Settle     bool            `yaml:"settle,omitempty"`
	Wait       Duration        `yaml:"wait,omitempty"`
}

// AttachViewStep attaches a new view under its own scope.
type AttachViewStep struct {
	Name           string   `yaml:"name"`
	InitialActions []string `yaml:"initial_actions,omitempty"`
}

// DispatchStep emits an action from an attached view.
type DispatchStep struct {
	View   string `yaml:"view"`
	Action string `yaml:"action"`
}

// ExternalStep feeds actions through an external action source.
type ExternalStep struct {
	Actions  []string `yaml:"actions"`
	Interval Duration `yaml:"interval,omitempty"`
}

// Expect lists the checks made on the trace. Unset fields are not checked.
type Expect struct {
	Final           *int             `yaml:"final,omitempty"`
	Rendered        map[string][]int `yaml:"rendered,omitempty"`
	Dispatches      *int             `yaml:"dispatches,omitempty"`
	Mutations       *int             `yaml:"mutations,omitempty"`
	HandlerFailures *int             `yaml:"handler_failures,omitempty"`
}

// Kind names the step for messages and traces.
func (s Step) Kind() string {
	switch {
	case s.AttachView != nil:
		return StepAttachView
	case s.Dispatch != nil:
		return StepDispatch
	case s.External != nil:
		return StepExternal
	case s.CancelView != "":
		return StepCancelView
	case s.Settle:
		return StepSettle
	case s.Wait > 0:
		return StepWait
	default:
		return ""
	}
}

// Step kinds.
const (
	StepAttachView = "attach_view"
	StepDispatch   = "dispatch"
	StepExternal   = "external"
	StepCancelView = "cancel_view"
	StepSettle     = "settle"
	StepWait       = "wait"
)

// Duration is a time.Duration written as "10ms" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"10ms\"", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: negative duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultTimeout bounds harness waits when a scenario sets none.
const DefaultTimeout = 2 * time.Second

func (s *Scenario) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout.Std()
	}
	return DefaultTimeout
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or fails schema validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return sc, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// validateScenario checks what the schema cannot: view names are attached
// before use and never reused.
func validateScenario(s *Scenario) error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	views := map[string]bool{} // name -> still attached
	for i, step := range s.Steps {
		switch step.Kind() {
		case StepAttachView:
			name := step.AttachView.Name
			if _, seen := views[name]; seen {
				return fmt.Errorf("steps[%d]: view %q already attached", i, name)
			}
			views[name] = true
		case StepDispatch:
			if !views[step.Dispatch.View] {
				return fmt.Errorf("steps[%d]: view %q is not attached", i, step.Dispatch.View)
			}
		case StepCancelView:
			if !views[step.CancelView] {
				return fmt.Errorf("steps[%d]: view %q is not attached", i, step.CancelView)
			}
			views[step.CancelView] = false
		case "":
			return fmt.Errorf("steps[%d]: empty step", i)
		}
	}

	for name := range s.Expect.Rendered {
		if _, seen := views[name]; !seen {
			return fmt.Errorf("expect.rendered: view %q is never attached", name)
		}
	}
	return nil
}
