package harness

import (
	"github.com/roach88/habitsync/internal/model"
)

// Step outcomes recorded in the trace.
const (
	OutcomeOK              = "ok"
	OutcomeUnknownEntity   = "unknown_entity"
	OutcomeInvalid         = "invalid"
	OutcomeUnsupportedKind = "unsupported_kind"
	OutcomeNoop            = "noop"
	OutcomeError           = "error"
)

// TraceEvent is one executed flow step.
type TraceEvent struct {
	Step    int            `json:"step"`
	Action  string         `json:"action"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"`

	// EntryID is set when the step wrote a journal entry.
	EntryID string `json:"entry_id,omitempty"`

	// Scores holds every innerface and state score after the step, keyed
	// "<kind>/<id>".
	Scores map[string]float64 `json:"scores"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains the flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Queued lists the change kinds the engine handed to the sync queue.
	Queued []model.ChangeKind `json:"queued"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a flow step to the trace.
func (r *Result) AddStep(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
