package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kmc/internal/ir"
)

// TraceSnapshot is the deterministic part of a result, serialized as
// canonical JSON for golden comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Clean        bool         `json:"clean"`
	ErrorCode    string       `json:"error_code,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// MarshalSnapshot renders the result's snapshot as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	v, err := ir.FromGo(TraceSnapshot{
		ScenarioName: name,
		Clean:        result.Clean,
		ErrorCode:    result.ErrorCode,
		Trace:        result.Trace,
	})
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(v)
}

// RunWithGolden executes a scenario and compares its trace snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's snapshot against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}
	newGoldie(t).Assert(t, name, data)
	return nil
}

// AssertGoldenOutput compares the human-readable trace against
// testdata/golden/{name}.golden.
func AssertGoldenOutput(t *testing.T, name string, result *Result) {
	t.Helper()
	newGoldie(t).Assert(t, name, []byte(result.Output))
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
