// Package kernel is a small operating-system model used as the demo domain:
// a run queue, a virtual memory map and a file table. The same model runs as
// the checker's oracle and, with a different id base, as the target.
package kernel

import (
	"fmt"
	"strings"

	"github.com/roach88/kmc/internal/state"
)

// Perm is a mapping permission mask.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// ParsePerm parses "r", "rw", "rwx" and friends. "-" and "" mean none.
func ParsePerm(s string) (Perm, error) {
	var p Perm
	for _, c := range s {
		switch c {
		case 'r':
			p |= PermRead
		case 'w':
			p |= PermWrite
		case 'x':
			p |= PermExec
		case '-':
		default:
			return 0, fmt.Errorf("invalid permission %q", s)
		}
	}
	return p, nil
}

// String renders p as "rwx" with dashes for missing bits.
func (p Perm) String() string {
	b := []byte("---")
	if p&PermRead != 0 {
		b[0] = 'r'
	}
	if p&PermWrite != 0 {
		b[1] = 'w'
	}
	if p&PermExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Control is allocator bookkeeping that differs between model and target.
type Control struct {
	NextTask uint64
}

// VMA is one mapped region.
type VMA = state.Interval[state.Value[Perm]]

// State is the abstract kernel state.
type State struct {
	Tasks   state.IdentList[uint64]
	VMAs    state.List[VMA]
	Files   state.Map[string, state.Value[int64]]
	Control state.Ignored[Control]
}

// NewState returns an empty kernel whose task ids start at idBase.
func NewState(idBase uint64) *State {
	return &State{Control: state.Ignore(Control{NextTask: idBase})}
}

// Empty returns a zero state, used as the base for snapshots.
func Empty() *State {
	return &State{}
}

// Matches implements state.AbstractState.
func (s *State) Matches(other *State) bool {
	return state.MatchFields(s, other)
}

// Update implements state.AbstractState.
func (s *State) Update(other *State) {
	state.UpdateFields(s, other)
}

// Mismatches names the fields that differ from other.
func (s *State) Mismatches(other *State) []string {
	return state.FieldMismatches(s, other)
}

// String renders a multi-line dump for traces.
func (s *State) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tasks: %v\n", s.Tasks)
	fmt.Fprintf(&b, "vmas: %v\n", s.VMAs)
	fmt.Fprintf(&b, "files: %v\n", s.Files)
	fmt.Fprintf(&b, "control: %v", s.Control)
	return b.String()
}

func (s *State) findVMA(addr, length uint64) (int, bool) {
	span := state.NewInterval(addr, addr+length, state.Value[Perm]{})
	for i, v := range s.VMAs.Items {
		if v.Overlaps(span) {
			return i, true
		}
	}
	return -1, false
}
