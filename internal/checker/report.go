package checker

import (
	"context"

	"github.com/roach88/kmc/internal/command"
)

// Printer is the text sink for the human-readable trace.
type Printer interface {
	Print(s string)
}

type nopPrinter struct{}

func (nopPrinter) Print(string) {}

// Stats counts what happened during a session.
type Stats struct {
	Rounds            int `json:"rounds"`
	RetvMismatches    int `json:"retv_mismatches"`
	ExtraMismatches   int `json:"extra_mismatches"`
	StateMismatches   int `json:"state_mismatches"`
	ExecutionFailures int `json:"execution_failures"`
	Exchanges         int `json:"exchanges"`
}

// Mismatches returns the total number of mismatches of any kind.
func (s Stats) Mismatches() int {
	return s.RetvMismatches + s.ExtraMismatches + s.StateMismatches
}

// RoundReport describes one round once it is decided.
type RoundReport struct {
	Round    int
	Command  string
	Kind     command.Kind
	Expected int64
	Got      int64

	RetvMatch  bool
	ExtraMatch bool

	// StateChecked is false when the round ended before the state was
	// compared (a Strict result-code mismatch).
	StateChecked bool
	StateMatch   bool

	// Model and Target are the compared states. Target is nil when
	// StateChecked is false.
	Model  any
	Target any
}

// Observer receives one report per decided round.
type Observer interface {
	ObserveRound(ctx context.Context, r RoundReport) error
}
