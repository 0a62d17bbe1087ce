// Package state implements the abstract-state algebra used by the model checker.
//
// An abstract state is a reduced, comparison-focused view of a system's
// observable state. Every type in this package implements AbstractState:
//
//   - Matches reports observational equivalence under the model's precision.
//   - Update absorbs another state as the new baseline.
//
// INVARIANT: after a.Update(b), a.Matches(b) holds, except for Ignored cells
// (never updated) and identifier collections (relabeled on every comparison).
//
// # Primitives
//
//	Value[T]       exact cell, equality
//	Ignored[T]     never compared, never updated
//	List[E]        ordered sequence, element-wise
//	Set[E]         unordered, every element has some counterpart (non-consuming)
//	Bag[E]         unordered, bijective counterpart matching
//	Map[K, V]      key-indexed, same key set and matching values
//	IdentList[T]   identifiers compared after first-occurrence relabeling
//	IdentSet[T]    occurrence counts compared, order ignored
//	Interval[V]    half-open [Left, Right) range with payload
//	Option[V]      present/absent cell
//
// Element and payload types do not need to be AbstractState themselves: a
// type whose pointer has Matches/Update methods is compared structurally,
// anything else is treated as a scalar (equality compare, assignment update).
//
// # Aggregates
//
// Aggregate states compose the algebra field by field with MatchFields and
// UpdateFields, called explicitly from the aggregate's own methods:
//
//	type TaskState struct {
//	    Tasks   state.IdentList[uint64]
//	    Control state.Ignored[Control]
//	}
//
//	func (s *TaskState) Matches(o *TaskState) bool { return state.MatchFields(s, o) }
//	func (s *TaskState) Update(o *TaskState)       { state.UpdateFields(s, o) }
//
// A field of pointer type whose methods take that same pointer is composed
// through it: nil matches only nil, and Update fills a pointee of its own.
package state
