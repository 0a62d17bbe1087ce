package state

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// List is an ordered sequence. Two lists match when they have the same
// length and match element-wise in order.
type List[E any] struct {
	Items []E
}

// ListOf builds a list from items.
func ListOf[E any](items ...E) List[E] {
	return List[E]{Items: items}
}

// Len returns the number of elements.
func (l List[E]) Len() int {
	return len(l.Items)
}

// Matches compares element-wise in order.
func (l *List[E]) Matches(other *List[E]) bool {
	if len(l.Items) != len(other.Items) {
		return false
	}
	for i := range l.Items {
		if !matchOne(&l.Items[i], &other.Items[i]) {
			return false
		}
	}
	return true
}

// Update replaces the list wholesale with a copy of other.
func (l *List[E]) Update(other *List[E]) {
	l.Items = copyElems(other.Items)
}

func (l List[E]) String() string {
	return joinItems(l.Items)
}

// Set is an unordered collection. Two sets match when they have the same
// length and every element of the receiver has some matching counterpart in
// other.
//
// Counterparts are not consumed, so Set accepts {a, a, b} against {a, b, b}
// and is not guaranteed symmetric. Use Bag for bijective matching.
type Set[E any] struct {
	Items []E
}

// SetOf builds a set from items.
func SetOf[E any](items ...E) Set[E] {
	return Set[E]{Items: items}
}

// Len returns the number of elements.
func (s Set[E]) Len() int {
	return len(s.Items)
}

// Matches checks length, then that each element has some counterpart.
func (s *Set[E]) Matches(other *Set[E]) bool {
	if len(s.Items) != len(other.Items) {
		return false
	}
	for i := range s.Items {
		found := false
		for j := range other.Items {
			if matchOne(&s.Items[i], &other.Items[j]) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Update replaces the set wholesale with a copy of other.
func (s *Set[E]) Update(other *Set[E]) {
	s.Items = copyElems(other.Items)
}

func (s Set[E]) String() string {
	return "{" + strings.Trim(joinItems(s.Items), "[]") + "}"
}

// Bag is an unordered collection with multiset semantics: two bags match
// when their elements can be paired one-to-one with matching counterparts.
type Bag[E any] struct {
	Items []E
}

// BagOf builds a bag from items.
func BagOf[E any](items ...E) Bag[E] {
	return Bag[E]{Items: items}
}

// Len returns the number of elements.
func (b Bag[E]) Len() int {
	return len(b.Items)
}

// Matches searches for a perfect pairing between the two bags. Element
// matching is not assumed transitive, so the search uses augmenting paths
// rather than greedy assignment.
func (b *Bag[E]) Matches(other *Bag[E]) bool {
	n := len(b.Items)
	if n != len(other.Items) {
		return false
	}
	// owner[j] is the index in b paired with other.Items[j], or -1.
	owner := make([]int, n)
	for j := range owner {
		owner[j] = -1
	}
	var augment func(i int, seen []bool) bool
	augment = func(i int, seen []bool) bool {
		for j := 0; j < n; j++ {
			if seen[j] || !matchOne(&b.Items[i], &other.Items[j]) {
				continue
			}
			seen[j] = true
			if owner[j] < 0 || augment(owner[j], seen) {
				owner[j] = i
				return true
			}
		}
		return false
	}
	for i := 0; i < n; i++ {
		if !augment(i, make([]bool, n)) {
			return false
		}
	}
	return true
}

// Update replaces the bag wholesale with a copy of other.
func (b *Bag[E]) Update(other *Bag[E]) {
	b.Items = copyElems(other.Items)
}

func (b Bag[E]) String() string {
	return "{" + strings.Trim(joinItems(b.Items), "[]") + "}"
}

// Map is a key-indexed collection. Two maps match when they have the same
// size and every key is present in both with matching values.
type Map[K cmp.Ordered, V any] struct {
	Entries map[K]V
}

// MapOf wraps entries. A nil map is treated as empty.
func MapOf[K cmp.Ordered, V any](entries map[K]V) Map[K, V] {
	return Map[K, V]{Entries: entries}
}

// Len returns the number of entries.
func (m Map[K, V]) Len() int {
	return len(m.Entries)
}

// Keys returns the keys in ascending order.
func (m Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.Entries))
	for k := range m.Entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Set stores v under k, allocating the underlying map on first use.
func (m *Map[K, V]) Set(k K, v V) {
	if m.Entries == nil {
		m.Entries = make(map[K]V)
	}
	m.Entries[k] = v
}

// Matches compares key sets and per-key values.
func (m *Map[K, V]) Matches(other *Map[K, V]) bool {
	if len(m.Entries) != len(other.Entries) {
		return false
	}
	for k, v := range m.Entries {
		ov, ok := other.Entries[k]
		if !ok || !matchOne(&v, &ov) {
			return false
		}
	}
	return true
}

// Update replaces the map wholesale with a copy of other.
func (m *Map[K, V]) Update(other *Map[K, V]) {
	if other.Entries == nil {
		m.Entries = nil
		return
	}
	entries := make(map[K]V, len(other.Entries))
	for k, v := range other.Entries {
		var nv V
		updateOne(&nv, &v)
		entries[k] = nv
	}
	m.Entries = entries
}

func (m Map[K, V]) String() string {
	keys := m.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%v: %v", k, m.Entries[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// copyElems returns a fresh slice whose elements are absorbed one by one, so
// nested collections do not share storage with src.
func copyElems[E any](src []E) []E {
	if src == nil {
		return nil
	}
	out := make([]E, len(src))
	for i := range src {
		updateOne(&out[i], &src[i])
	}
	return out
}
