package state

import "fmt"

// Value is an exact cell: two values match when their payloads are equal.
type Value[T comparable] struct {
	V T
}

// Val wraps v in an exact cell.
func Val[T comparable](v T) Value[T] {
	return Value[T]{V: v}
}

// Matches reports payload equality.
func (v *Value[T]) Matches(other *Value[T]) bool {
	return v.V == other.V
}

// Update replaces the payload.
func (v *Value[T]) Update(other *Value[T]) {
	v.V = other.V
}

// Get returns the payload.
func (v Value[T]) Get() T {
	return v.V
}

func (v Value[T]) String() string {
	return fmt.Sprintf("%v", v.V)
}

// Ignored marks a field whose contents are target-specific: it always matches
// and refuses to update, so the model keeps its own copy (timestamps, padding,
// id allocators).
type Ignored[T any] struct {
	V T
}

// Ignore wraps v in an ignored cell.
func Ignore[T any](v T) Ignored[T] {
	return Ignored[T]{V: v}
}

// Matches always returns true.
func (i *Ignored[T]) Matches(*Ignored[T]) bool {
	return true
}

// Update is a no-op.
func (i *Ignored[T]) Update(*Ignored[T]) {}

func (i Ignored[T]) String() string {
	return fmt.Sprintf("~%v", i.V)
}

// Option is a cell that may be absent. Two options match when both are
// absent, or both are present with matching payloads.
type Option[V any] struct {
	Val   V
	Valid bool
}

// Some returns a present option.
func Some[V any](v V) Option[V] {
	return Option[V]{Val: v, Valid: true}
}

// None returns an absent option.
func None[V any]() Option[V] {
	return Option[V]{}
}

// Get returns the payload and whether it is present.
func (o Option[V]) Get() (V, bool) {
	return o.Val, o.Valid
}

// Matches compares presence, then payload.
func (o *Option[V]) Matches(other *Option[V]) bool {
	if o.Valid != other.Valid {
		return false
	}
	if !o.Valid {
		return true
	}
	return matchOne(&o.Val, &other.Val)
}

// Update adopts other's presence. A present payload is updated in place
// when the receiver already holds one.
func (o *Option[V]) Update(other *Option[V]) {
	if !other.Valid {
		var zero V
		o.Val = zero
		o.Valid = false
		return
	}
	if !o.Valid {
		var zero V
		o.Val = zero
	}
	updateOne(&o.Val, &other.Val)
	o.Valid = true
}

func (o Option[V]) String() string {
	if !o.Valid {
		return "None"
	}
	return fmt.Sprintf("Some(%v)", o.Val)
}
