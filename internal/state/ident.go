package state

import (
	"fmt"
	"slices"
)

// IdentList is an ordered sequence of identifiers (handles, pids, addresses)
// whose concrete values are assigned by the system under test. Two lists
// match when they have the same shape after relabeling: each identifier is
// replaced by the index of its first occurrence.
//
//	[7, 3, 7] and [100, 42, 100] both relabel to [0, 1, 0]
type IdentList[T comparable] struct {
	IDs []T
}

// IdentsOf builds an identifier list.
func IdentsOf[T comparable](ids ...T) IdentList[T] {
	return IdentList[T]{IDs: ids}
}

// Len returns the number of identifiers.
func (l IdentList[T]) Len() int {
	return len(l.IDs)
}

// Matches compares the relabeled sequences.
func (l *IdentList[T]) Matches(other *IdentList[T]) bool {
	if len(l.IDs) != len(other.IDs) {
		return false
	}
	return slices.Equal(Relabel(l.IDs), Relabel(other.IDs))
}

// Update replaces the identifiers wholesale. The relabeling is recomputed on
// every comparison and never stored.
func (l *IdentList[T]) Update(other *IdentList[T]) {
	l.IDs = slices.Clone(other.IDs)
}

func (l IdentList[T]) String() string {
	return fmt.Sprintf("%v", l.IDs)
}

// IdentSet is an unordered collection of identifiers. Two sets match when
// they have the same multiset of occurrence counts, so renaming any id and
// reordering the collection both preserve a match.
//
//	{1, 2, 1} and {5, 9, 9} both count to [1, 2]
type IdentSet[T comparable] struct {
	IDs []T
}

// IdentSetOf builds an identifier set.
func IdentSetOf[T comparable](ids ...T) IdentSet[T] {
	return IdentSet[T]{IDs: ids}
}

// Len returns the number of identifiers.
func (s IdentSet[T]) Len() int {
	return len(s.IDs)
}

// Matches compares the sorted occurrence counts of both sides.
func (s *IdentSet[T]) Matches(other *IdentSet[T]) bool {
	if len(s.IDs) != len(other.IDs) {
		return false
	}
	return slices.Equal(multiplicities(s.IDs), multiplicities(other.IDs))
}

// Update replaces the identifiers wholesale.
func (s *IdentSet[T]) Update(other *IdentSet[T]) {
	s.IDs = slices.Clone(other.IDs)
}

func (s IdentSet[T]) String() string {
	return fmt.Sprintf("%v", s.IDs)
}

// Relabel maps each identifier to the index of its first occurrence in ids.
func Relabel[T comparable](ids []T) []int {
	seen := make(map[T]int, len(ids))
	out := make([]int, len(ids))
	for i, id := range ids {
		label, ok := seen[id]
		if !ok {
			label = len(seen)
			seen[id] = label
		}
		out[i] = label
	}
	return out
}

// multiplicities returns how often each distinct id occurs, sorted ascending.
func multiplicities[T comparable](ids []T) []int {
	counts := make(map[T]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}
	out := make([]int, 0, len(counts))
	for _, n := range counts {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
