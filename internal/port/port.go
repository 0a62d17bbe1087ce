// Package port connects the checker to a target: a CommandChannel carries
// commands and result codes, a StateChannel retrieves the target's abstract
// state over one or more exchanges.
package port

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/kmc/internal/command"
)

// CommandChannel sends commands to the target and reads back result codes.
type CommandChannel[S any] interface {
	SendCommand(ctx context.Context, cmd command.Command[S]) error
	ReceiveResult(ctx context.Context) (int64, error)
}

// ExtraReceiver is implemented by channels that can return a command's
// out-of-band payload. length is the size the model produced.
type ExtraReceiver interface {
	ReceiveExtra(ctx context.Context, length int) ([]byte, error)
}

// StateChannel retrieves the target's state. Retrieval is started once,
// RetrieveStateData is called until it reports finished, and
// FinishStateRetrieval returns the decoded snapshot. The accumulation buffer
// belongs to the channel until Finish returns.
type StateChannel[S any] interface {
	StartStateRetrieval(ctx context.Context) error
	RetrieveStateData(ctx context.Context) (finished bool, err error)
	FinishStateRetrieval(ctx context.Context) (S, error)
}

// Port is a full connection to one target.
type Port[S any] interface {
	CommandChannel[S]
	StateChannel[S]
}

var (
	// ErrNoCommand is returned when a result is requested before any command
	// was sent.
	ErrNoCommand = errors.New("no command in flight")

	// ErrNotRetrieving is returned when retrieval calls arrive out of order.
	ErrNotRetrieving = errors.New("state retrieval not started")

	// ErrIncomplete is returned by FinishStateRetrieval before the channel
	// reported finished.
	ErrIncomplete = errors.New("state retrieval incomplete")
)

// IOError is a transport failure. It is unrecoverable for the current round.
type IOError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("port %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// IsIOError checks if an error is an IOError.
// Uses errors.As to handle wrapped errors.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

func ioErr(op string, err error) error {
	return &IOError{Op: op, Err: err}
}
