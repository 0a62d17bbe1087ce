// Package harness runs checker sessions described by scenario files.
//
// # Scenario Format
//
// Scenarios are YAML files validated against an embedded CUE schema:
//
//	name: spawn_exit
//	description: "Spawn two tasks and retire them"
//	commands:
//	  - spawn
//	  - sched
//	  - exit
//	retv: strict
//	state: relaxed
//	transport: mem
//	faults:
//	  - round: 2
//	    retv: 1
//	assertions:
//	  - type: outcome
//	    pass: false
//	    error_code: RETURN_VALUE_MISMATCH
//
// A scenario either lists commands (a script) or asks for a random session:
//
//	random:
//	  seed: 7
//	  count: 200
//
// # Assertion Types
//
//   - trace_contains: a command appears in the trace
//   - trace_order: commands appear in the given order
//   - trace_count: a command appears exactly N times
//   - outcome: the session passed or failed, optionally with an error code
//   - mismatch: a given round mismatched on retv, extra or state
//   - final_model: the model's final task, mapping and file counts
//
// Without an outcome assertion a scenario passes only when the session was
// clean: no error and no mismatch of any severity.
//
// # Determinism
//
// Scripted sessions are deterministic; random sessions are reproducible from
// their seed. Traces recorded to a store get session IDs from the configured
// generator, which tests fix.
package harness
