package command

import (
	"fmt"
	"math/rand/v2"
)

// Generator proposes one kind of command. Make may inspect the model state
// and return ok=false when the command would be vacuous (scheduling with
// nothing runnable), in which case another generator is tried.
type Generator[S any] struct {
	Name   string
	Weight int
	Make   func(rng *rand.Rand, s S) (cmd Command[S], ok bool)
}

// Random draws commands from weighted generators using a seeded PRNG, so a
// session is reproducible from its seed.
type Random[S any] struct {
	rng    *rand.Rand
	gens   []Generator[S]
	total  int
	limit  int
	issued int
}

// NewRandom creates a randomized commander. limit bounds the number of
// commands issued (0 = unbounded). Generators with a non-positive weight
// count as weight 1.
func NewRandom[S any](seed uint64, limit int, gens ...Generator[S]) *Random[S] {
	r := &Random[S]{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		limit: limit,
	}
	for _, g := range gens {
		if g.Weight <= 0 {
			g.Weight = 1
		}
		r.total += g.Weight
		r.gens = append(r.gens, g)
	}
	return r
}

// Command draws the next command.
func (r *Random[S]) Command(s S) (Command[S], error) {
	if r.limit > 0 && r.issued >= r.limit {
		return nil, fmt.Errorf("random commander reached limit %d: %w", r.limit, ErrExhausted)
	}
	if len(r.gens) == 0 {
		return nil, fmt.Errorf("random commander has no generators: %w", ErrExhausted)
	}

	// Weighted draws first, then a deterministic sweep so an enabled
	// generator is always found if one exists.
	for attempt := 0; attempt < 4*len(r.gens); attempt++ {
		if cmd, ok := r.pick().Make(r.rng, s); ok {
			r.issued++
			return cmd, nil
		}
	}
	for _, g := range r.gens {
		if cmd, ok := g.Make(r.rng, s); ok {
			r.issued++
			return cmd, nil
		}
	}
	return nil, fmt.Errorf("no generator enabled in current state: %w", ErrExhausted)
}

// Issued returns the number of commands produced so far.
func (r *Random[S]) Issued() int {
	return r.issued
}

func (r *Random[S]) pick() Generator[S] {
	n := r.rng.IntN(r.total)
	for _, g := range r.gens {
		if n < g.Weight {
			return g
		}
		n -= g.Weight
	}
	return r.gens[len(r.gens)-1]
}
