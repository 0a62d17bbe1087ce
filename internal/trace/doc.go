// Package trace provides the sinks a checker session writes to: text
// printers for the human-readable trace, session identifiers, and a
// Recorder that persists every decided round to the store.
package trace
