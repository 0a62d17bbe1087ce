package checker

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes session failures.
type ErrorCode string

const (
	// CodeIOError indicates a transport failure inside the port.
	CodeIOError ErrorCode = "IO_ERROR"

	// CodeReturnValueMismatch indicates model and target disagreed on a
	// result code or extra payload under Strict severity.
	CodeReturnValueMismatch ErrorCode = "RETURN_VALUE_MISMATCH"

	// CodeStateMismatch indicates model and target states diverged under
	// Strict severity.
	CodeStateMismatch ErrorCode = "STATE_MISMATCH"

	// CodeExecutionFailed indicates a command failed on the model and the
	// commander's failure policy ended the session, or the model returned
	// an error that is not a designated failure.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// CodeCommander indicates the commander failed for a reason other than
	// exhaustion.
	CodeCommander ErrorCode = "COMMANDER_ERROR"

	// CodeObserver indicates a round observer failed.
	CodeObserver ErrorCode = "OBSERVER_ERROR"
)

// ErrHalted is returned by Step after the session failed. It wraps the
// original cause.
var ErrHalted = errors.New("checker halted")

// CheckError is a fatal session failure.
type CheckError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Round is the round being checked when the error occurred.
	Round int

	// Phase is the transition that failed.
	Phase Phase

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	msg := fmt.Sprintf("%s: %s (round=%d, phase=%s)", e.Code, e.Message, e.Round, e.Phase)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CheckError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsIOError returns true if the session failed on a transport error.
func IsIOError(err error) bool {
	return hasCode(err, CodeIOError)
}

// IsReturnValueMismatch returns true if the session failed on a result
// code mismatch.
func IsReturnValueMismatch(err error) bool {
	return hasCode(err, CodeReturnValueMismatch)
}

// IsStateMismatch returns true if the session failed on a state mismatch.
func IsStateMismatch(err error) bool {
	return hasCode(err, CodeStateMismatch)
}

// IsExecutionFailed returns true if the session was ended by a command's
// designated failure.
func IsExecutionFailed(err error) bool {
	return hasCode(err, CodeExecutionFailed)
}
