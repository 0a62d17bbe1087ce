package port

// Shared is a single-owner cell holding a mirror state that a Loopback
// advances and tests inspect. It has no lock: sessions are single-threaded.
type Shared[S any] struct {
	v S
}

// NewShared wraps v.
func NewShared[S any](v S) *Shared[S] {
	return &Shared[S]{v: v}
}

// Get returns the current value. For pointer states the caller sees live
// mutations.
func (c *Shared[S]) Get() S {
	return c.v
}

// Set replaces the held value.
func (c *Shared[S]) Set(v S) {
	c.v = v
}
