package harness

import "github.com/beamio-APP/BeamioContract/internal/client"

// Step statuses in a trace.
const (
	StatusCommitted = "committed"
	StatusReverted  = "reverted"
	// StatusSkipped marks a step that submitted nothing, such as a
	// migration with nothing to change.
	StatusSkipped = "skipped"
)

// TraceStep is one executed step with every value rendered symbolically.
type TraceStep struct {
	Seq    int64          `json:"seq"`
	Op     string         `json:"op"`
	From   string         `json:"from"`
	Args   map[string]any `json:"args"`
	Status string         `json:"status"`
	Code   string         `json:"code,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Events []TraceEvent   `json:"events"`
}

// TraceEvent is an event emitted by a step.
type TraceEvent struct {
	Contract string         `json:"contract"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass   bool          `json:"pass"`
	Trace  []TraceStep   `json:"trace"`
	Errors []string      `json:"errors,omitempty"`
	System client.System `json:"system"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
