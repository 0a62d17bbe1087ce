package command

import "fmt"

// FailFastCommander wraps a Commander so that any designated execution
// failure ends the session.
type FailFastCommander[S any] struct {
	Commander[S]
}

// FailFast wraps c.
func FailFast[S any](c Commander[S]) *FailFastCommander[S] {
	return &FailFastCommander[S]{Commander: c}
}

// OnExecutionFailed implements FailurePolicy.
func (f *FailFastCommander[S]) OnExecutionFailed(cmd Command[S], code int64) error {
	return fmt.Errorf("%s: %w", cmd, Failed(code, "fail-fast policy"))
}
