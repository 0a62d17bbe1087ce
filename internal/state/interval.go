package state

import "fmt"

// Interval is a half-open range [Left, Right) carrying a payload. It models
// address and offset ranges (memory regions, file extents).
//
// The range operations below look only at bounds; the payload rides along.
type Interval[V any] struct {
	Left  uint64
	Right uint64
	Value V
}

// NewInterval builds [left, right) with payload v.
func NewInterval[V any](left, right uint64, v V) Interval[V] {
	return Interval[V]{Left: left, Right: right, Value: v}
}

// Len returns Right-Left, or 0 for an inverted range.
func (i Interval[V]) Len() uint64 {
	if i.Right <= i.Left {
		return 0
	}
	return i.Right - i.Left
}

// Empty reports whether the range contains no points.
func (i Interval[V]) Empty() bool {
	return i.Right <= i.Left
}

// ContainsPoint reports whether p lies in [Left, Right).
func (i Interval[V]) ContainsPoint(p uint64) bool {
	return i.Left <= p && p < i.Right
}

// Overlaps reports whether the two ranges share at least one point.
// It is symmetric.
func (i Interval[V]) Overlaps(other Interval[V]) bool {
	return i.ContainsPoint(other.Left) || other.ContainsPoint(i.Left)
}

// Covers reports whether i strictly covers other: other lies inside i and
// shares neither bound.
func (i Interval[V]) Covers(other Interval[V]) bool {
	return i.Left < other.Left && i.Right > other.Right
}

// Contains is an alias of Covers.
func (i Interval[V]) Contains(other Interval[V]) bool {
	return i.Covers(other)
}

// Intersect returns the overlap of the two ranges tagged with i's payload.
// ok is false when the ranges are disjoint.
func (i Interval[V]) Intersect(other Interval[V]) (Interval[V], bool) {
	if !i.Overlaps(other) {
		return Interval[V]{}, false
	}
	return Interval[V]{
		Left:  max(i.Left, other.Left),
		Right: min(i.Right, other.Right),
		Value: i.Value,
	}, true
}

// Subtract returns the parts of i outside other: zero, one or two
// fragments, each carrying i's payload.
func (i Interval[V]) Subtract(other Interval[V]) []Interval[V] {
	if !i.Overlaps(other) {
		return []Interval[V]{i}
	}
	var out []Interval[V]
	if i.Left < other.Left {
		out = append(out, Interval[V]{Left: i.Left, Right: other.Left, Value: i.Value})
	}
	if i.Right > other.Right {
		out = append(out, Interval[V]{Left: other.Right, Right: i.Right, Value: i.Value})
	}
	return out
}

// Matches compares bounds and payload.
func (i *Interval[V]) Matches(other *Interval[V]) bool {
	return i.Left == other.Left && i.Right == other.Right && matchOne(&i.Value, &other.Value)
}

// Update adopts other's bounds and payload.
func (i *Interval[V]) Update(other *Interval[V]) {
	i.Left = other.Left
	i.Right = other.Right
	updateOne(&i.Value, &other.Value)
}

func (i Interval[V]) String() string {
	return fmt.Sprintf("[%#x, %#x):%v", i.Left, i.Right, i.Value)
}
