package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the command trace to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Commands in round order
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, cmd := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i, cmd)
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result, a)
	case AssertTraceOrder:
		return assertTraceOrder(result, a)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	case AssertOutcome:
		return assertOutcome(result, a)
	case AssertMismatch:
		return assertMismatch(result, a)
	case AssertFinalModel:
		return assertFinalModel(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func hasOutcomeAssertion(assertions []Assertion) bool {
	return slices.ContainsFunc(assertions, func(a Assertion) bool {
		return a.Type == AssertOutcome
	})
}

// assertTraceContains checks that the command was issued at least once.
func assertTraceContains(result *Result, a Assertion) error {
	if slices.Contains(result.Commands(), a.Command) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("command %q", a.Command),
		Actual:   "not found in trace",
		Trace:    result.Commands(),
	}
}

// assertTraceOrder checks that commands appear in the given order.
// Commands don't need to be consecutive.
func assertTraceOrder(result *Result, a Assertion) error {
	cmds := result.Commands()
	pos := 0
	for _, want := range a.Commands {
		idx := slices.Index(cmds[pos:], want)
		if idx < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("commands in order: %v", a.Commands),
				Actual:   fmt.Sprintf("%q not found after round %d", want, pos),
				Trace:    cmds,
			}
		}
		pos += idx + 1
	}
	return nil
}

// assertTraceCount checks that the command appears exactly Count times.
func assertTraceCount(result *Result, a Assertion) error {
	count := 0
	for _, cmd := range result.Commands() {
		if cmd == a.Command {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("command %q %d times", a.Command, a.Count),
		Actual:   fmt.Sprintf("%d times", count),
		Trace:    result.Commands(),
	}
}

// assertOutcome checks clean/unclean termination and the error code.
func assertOutcome(result *Result, a Assertion) error {
	if *a.Pass != result.Clean {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("pass=%t", *a.Pass),
			Actual:   fmt.Sprintf("pass=%t (%s)", result.Clean, describeEnd(result)),
			Trace:    result.Commands(),
		}
	}
	if a.ErrorCode != "" && a.ErrorCode != result.ErrorCode {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("error code %s", a.ErrorCode),
			Actual:   describeEnd(result),
			Trace:    result.Commands(),
		}
	}
	return nil
}

func describeEnd(result *Result) string {
	if result.ErrorCode != "" {
		return "error code " + result.ErrorCode
	}
	if result.Err != nil {
		return result.Err.Error()
	}
	return fmt.Sprintf("%d mismatches", result.Stats.Mismatches())
}

// assertMismatch checks that the given round disagreed on the given kind.
func assertMismatch(result *Result, a Assertion) error {
	idx := slices.IndexFunc(result.Trace, func(ev TraceEvent) bool {
		return ev.Round == *a.Round
	})
	if idx < 0 {
		return &AssertionError{
			Type:     AssertMismatch,
			Expected: fmt.Sprintf("%s mismatch at round %d", a.Kind, *a.Round),
			Actual:   "round not in trace",
			Trace:    result.Commands(),
		}
	}

	ev := result.Trace[idx]
	var mismatched bool
	switch a.Kind {
	case "retv":
		mismatched = !ev.RetvMatch
	case "extra":
		mismatched = !ev.ExtraMatch
	case "state":
		mismatched = ev.StateChecked && !ev.StateMatch
	}
	if mismatched {
		return nil
	}
	return &AssertionError{
		Type:     AssertMismatch,
		Expected: fmt.Sprintf("%s mismatch at round %d", a.Kind, *a.Round),
		Actual:   fmt.Sprintf("round %d (%s) matched", ev.Round, ev.Command),
		Trace:    result.Commands(),
	}
}

// assertFinalModel checks the model's final counts and file sizes.
func assertFinalModel(result *Result, a Assertion) error {
	final := result.Final
	if final == nil {
		return &AssertionError{Type: AssertFinalModel, Expected: "a final model", Actual: "none"}
	}

	var problems []string
	if a.Tasks != nil && final.Tasks.Len() != *a.Tasks {
		problems = append(problems, fmt.Sprintf("tasks=%d (want %d)", final.Tasks.Len(), *a.Tasks))
	}
	if a.VMAs != nil && len(final.VMAs.Items) != *a.VMAs {
		problems = append(problems, fmt.Sprintf("vmas=%d (want %d)", len(final.VMAs.Items), *a.VMAs))
	}
	paths := make([]string, 0, len(a.Files))
	for path := range a.Files {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	for _, path := range paths {
		want := int64(a.Files[path])
		got, ok := final.Files.Entries[path]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("file %s missing", path))
		case got.V != want:
			problems = append(problems, fmt.Sprintf("file %s size=%d (want %d)", path, got.V, want))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalModel,
		Expected: "final model as declared",
		Actual:   strings.Join(problems, ", "),
		Trace:    result.Commands(),
	}
}
