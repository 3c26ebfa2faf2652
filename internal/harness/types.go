package harness

// Trace is what a scenario run observed, grouped per stream.
type Trace struct {
	Scenario        string           `json:"scenario"`
	Dispatches      []DispatchEvent  `json:"dispatches"`
	Mutations       []string         `json:"mutations"`
	Renders         map[string][]int `json:"renders"`
	HandlerFailures []string         `json:"handler_failures"`
	Final           int              `json:"final"`
	Version         int64            `json:"version"`
}

// DispatchEvent is one dispatched action with the counter value it was
// dispatched against.
type DispatchEvent struct {
	Seq        int64  `json:"seq"`
	DispatchID string `json:"dispatch_id"`
	Action     string `json:"action"`
	State      int    `json:"state"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Trace is everything the run observed.
	Trace Trace `json:"trace"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Pass: true,
		Trace: Trace{
			Scenario:        scenario,
			Dispatches:      []DispatchEvent{},
			Mutations:       []string{},
			Renders:         map[string][]int{},
			HandlerFailures: []string{},
		},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
