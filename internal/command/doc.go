// Package command defines the two sides of the execution duality: a Command
// runs against the in-process model and serializes for the real target, and
// a Commander decides which Command comes next.
//
// Execute must be deterministic and total over well-formed states. When a
// precondition cannot be satisfied (scheduling with nothing runnable,
// unmapping a hole) the command returns an *ExecutionFailedError carrying
// the designated failure code instead of panicking: the real target is
// expected to fail the same way, and the checker compares the codes.
//
// A Commander signals the normal end of a session by returning ErrExhausted.
package command
