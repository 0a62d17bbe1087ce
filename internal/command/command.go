package command

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind is the per-kind command identifier shared by model and target.
type Kind uint64

// Command is a single operation applied to both the model and the target.
type Command[S any] interface {
	// Kind returns the command identifier written in the wire frame.
	Kind() Kind
	// Execute applies the command to the model state and returns the
	// expected result code.
	Execute(s S) (int64, error)
	// MarshalBinary encodes the command for transmission to the target.
	MarshalBinary() ([]byte, error)
	fmt.Stringer
}

// Commander produces the next command. The state argument is the current
// model state and must be treated as read-only.
type Commander[S any] interface {
	Command(s S) (Command[S], error)
}

// FailurePolicy is an optional Commander capability deciding whether a
// command's designated failure ends the session. Returning nil continues.
type FailurePolicy[S any] interface {
	OnExecutionFailed(cmd Command[S], code int64) error
}

// ExtraProducer is implemented by commands whose effect includes an
// out-of-band payload (directory entries, stat buffers). Extra renders the
// payload from the model state right after Execute; the checker reads the
// same number of bytes back from the target and compares them alongside the
// result code.
type ExtraProducer[S any] interface {
	Extra(s S) []byte
}

// Func adapts a plain function to the Commander interface.
type Func[S any] func(s S) (Command[S], error)

// Command calls f.
func (f Func[S]) Command(s S) (Command[S], error) {
	return f(s)
}

// ErrExhausted signals that the commander has no more commands. It is a
// normal termination, not a fault.
var ErrExhausted = errors.New("commander exhausted")

// IsExhausted reports whether err is or wraps ErrExhausted.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}

// ExecutionFailedError is a command's designated failure result.
type ExecutionFailedError struct {
	// Code is the result code the target is expected to return as well.
	Code int64

	// Reason is a short human-readable explanation.
	Reason string
}

// Failed returns an *ExecutionFailedError for code.
func Failed(code int64, reason string) *ExecutionFailedError {
	return &ExecutionFailedError{Code: code, Reason: reason}
}

// Error implements the error interface.
func (e *ExecutionFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("execution failed (%d): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("execution failed (%d)", e.Code)
}

// FailureCode extracts the designated failure code from err.
// Uses errors.As to handle wrapped errors.
func FailureCode(err error) (int64, bool) {
	var fe *ExecutionFailedError
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return 0, false
}

// FrameHeaderLen is the size of the little-endian kind header.
const FrameHeaderLen = 8

// ErrShortFrame is returned when a frame is shorter than its header.
var ErrShortFrame = errors.New("frame shorter than header")

// Frame encodes kind as an 8-byte little-endian header followed by payload.
func Frame(kind Kind, payload []byte) []byte {
	buf := make([]byte, FrameHeaderLen, FrameHeaderLen+len(payload))
	binary.LittleEndian.PutUint64(buf, uint64(kind))
	return append(buf, payload...)
}

// ParseFrame splits a frame produced by Frame.
func ParseFrame(frame []byte) (Kind, []byte, error) {
	if len(frame) < FrameHeaderLen {
		return 0, nil, fmt.Errorf("parse frame: %w (%d bytes)", ErrShortFrame, len(frame))
	}
	return Kind(binary.LittleEndian.Uint64(frame)), frame[FrameHeaderLen:], nil
}
