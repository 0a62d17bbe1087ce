package state

import (
	"fmt"
	"reflect"
	"strings"
)

// AbstractState is the comparison capability every model state provides.
//
// S is normally a pointer to the implementing type, so that Update can
// mutate the receiver in place:
//
//	var _ AbstractState[*Value[int]] = (*Value[int])(nil)
type AbstractState[S any] interface {
	// Matches reports whether the receiver is observationally equivalent to other.
	Matches(other S) bool
	// Update absorbs other as the new baseline.
	Update(other S)
}

// matcher and updater are the dynamic forms of AbstractState for an element
// type E, resolved at runtime so that scalar element types need no wrapper.
type matcher[E any] interface {
	Matches(other *E) bool
}

type updater[E any] interface {
	Update(other *E)
}

// matchOne compares two elements. Elements whose pointer implements Matches
// are compared structurally; everything else falls back to equality.
func matchOne[E any](a, b *E) bool {
	if m, ok := any(a).(matcher[E]); ok {
		return m.Matches(b)
	}
	return scalarEqual(*a, *b)
}

// updateOne copies src into dst. Elements whose pointer implements Update
// absorb src structurally; everything else is assigned.
func updateOne[E any](dst, src *E) {
	if u, ok := any(dst).(updater[E]); ok {
		u.Update(src)
		return
	}
	*dst = copyScalar(*src)
}

// scalarEqual compares two plain values. Comparable values use ==, the rest
// (slices, maps, funcs) fall back to reflect.DeepEqual.
func scalarEqual[E any](a, b E) bool {
	ra := reflect.ValueOf(&a).Elem()
	if ra.Comparable() {
		return ra.Equal(reflect.ValueOf(&b).Elem())
	}
	return reflect.DeepEqual(a, b)
}

// copyScalar returns v, cloning top-level slices and maps so the result
// shares no backing storage with the source.
func copyScalar[E any](v E) E {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		var out E
		reflect.ValueOf(&out).Elem().Set(cloneValue(rv))
		return out
	}
	return v
}

// cloneValue shallow-clones slice and map values; other kinds are returned as is.
func cloneValue(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return reflect.Zero(rv.Type())
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out
	case reflect.Map:
		if rv.IsNil() {
			return reflect.Zero(rv.Type())
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out
	}
	return rv
}

// joinItems renders a slice as "[a, b, c]" using each element's %v form.
func joinItems[E any](items []E) string {
	parts := make([]string, len(items))
	for i := range items {
		parts[i] = fmt.Sprintf("%v", items[i])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
