package harness

import (
	"github.com/roach88/kmc/internal/checker"
	"github.com/roach88/kmc/internal/kernel"
)

// TraceEvent is one decided round as seen by the harness.
type TraceEvent struct {
	Round        int    `json:"round"`
	Command      string `json:"command"`
	Expected     int64  `json:"expected"`
	Got          int64  `json:"got"`
	RetvMatch    bool   `json:"retv_match"`
	ExtraMatch   bool   `json:"extra_match"`
	StateChecked bool   `json:"state_checked"`
	StateMatch   bool   `json:"state_match"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held. Without an outcome assertion
	// the session must also be clean.
	Pass bool `json:"pass"`

	// Clean is true when the session ended without error or mismatch.
	Clean bool `json:"clean"`

	// SessionID is set when the session was recorded to a store.
	SessionID string `json:"session_id,omitempty"`

	Stats checker.Stats `json:"stats"`

	// Trace holds one event per decided round, in round order.
	Trace []TraceEvent `json:"trace"`

	// ErrorCode is the checker error code, empty on normal termination.
	ErrorCode string `json:"error_code,omitempty"`

	// Errors contains assertion failures and the session error.
	Errors []string `json:"errors"`

	// Output is the human-readable trace.
	Output string `json:"-"`

	// Err is the error the session ended with, nil on normal termination.
	Err error `json:"-"`

	// Final is the model after the last round.
	Final *kernel.State `json:"-"`
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

// Commands returns the command text of every traced round.
func (r *Result) Commands() []string {
	out := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Command
	}
	return out
}
