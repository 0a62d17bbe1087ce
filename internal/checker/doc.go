// Package checker drives a model and a target through the same command
// sequence and compares them after every step.
//
// The checker is a state machine advanced one transition per Step:
//
//	Start ──► GetState ──► Init ──► Command ──► CheckRetv ──► GetState ──► CheckState ─┐
//	             ▲  │                  ▲                                                 │
//	             └──┘ not finished     └─────────────────────────────────────────────────┘
//
// GetState loops while the port reports the retrieval unfinished; after the
// first retrieval it moves to Init, afterwards to CheckState.
//
// Result codes and states are checked under independent severities. None
// skips the check, Relaxed prints and counts the mismatch, Strict prints it
// and halts the session with a *CheckError. A halted checker refuses further
// steps with ErrHalted.
//
// The checker is single-threaded. It never starts goroutines; blocking only
// happens inside Port calls.
package checker
