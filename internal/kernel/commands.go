package kernel

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/state"
)

// Result codes, negated errno style.
const (
	ENOENT = -2
	ESRCH  = -3
	EEXIST = -17
	EINVAL = -22
	EFBIG  = -27
)

// PageSize is the mapping granularity.
const PageSize = 0x1000

// Command kinds.
const (
	KindSpawn command.Kind = iota + 1
	KindSched
	KindExit
	KindMmap
	KindMunmap
	KindWrite
	KindStat
)

// Spawn appends a new task to the run queue.
type Spawn struct{}

func (Spawn) Kind() command.Kind { return KindSpawn }

func (Spawn) Execute(s *State) (int64, error) {
	s.Tasks.IDs = append(s.Tasks.IDs, s.Control.V.NextTask)
	s.Control.V.NextTask++
	return 0, nil
}

func (c Spawn) MarshalBinary() ([]byte, error) { return command.Frame(c.Kind(), nil), nil }
func (Spawn) String() string                   { return "spawn" }

// Sched rotates the head of the run queue to the tail.
type Sched struct{}

func (Sched) Kind() command.Kind { return KindSched }

func (Sched) Execute(s *State) (int64, error) {
	if len(s.Tasks.IDs) == 0 {
		return 0, command.Failed(ENOENT, "run queue empty")
	}
	head := s.Tasks.IDs[0]
	s.Tasks.IDs = append(s.Tasks.IDs[1:], head)
	return 0, nil
}

func (c Sched) MarshalBinary() ([]byte, error) { return command.Frame(c.Kind(), nil), nil }
func (Sched) String() string                   { return "sched" }

// Exit removes the most recently spawned task.
type Exit struct{}

func (Exit) Kind() command.Kind { return KindExit }

func (Exit) Execute(s *State) (int64, error) {
	if len(s.Tasks.IDs) == 0 {
		return 0, command.Failed(ESRCH, "no task to exit")
	}
	s.Tasks.IDs = s.Tasks.IDs[:len(s.Tasks.IDs)-1]
	return 0, nil
}

func (c Exit) MarshalBinary() ([]byte, error) { return command.Frame(c.Kind(), nil), nil }
func (Exit) String() string                   { return "exit" }

// Mmap maps [Addr, Addr+Len) with Perm. It fails on misalignment or if the
// range overlaps an existing mapping, and returns Addr on success.
type Mmap struct {
	Addr uint64
	Len  uint64
	Perm Perm
}

func (Mmap) Kind() command.Kind { return KindMmap }

func (c Mmap) Execute(s *State) (int64, error) {
	if c.Len == 0 || c.Addr%PageSize != 0 || c.Len%PageSize != 0 || c.Addr+c.Len < c.Addr {
		return 0, command.Failed(EINVAL, "bad range")
	}
	if _, ok := s.findVMA(c.Addr, c.Len); ok {
		return 0, command.Failed(EEXIST, "range already mapped")
	}
	vma := state.NewInterval(c.Addr, c.Addr+c.Len, state.Val(c.Perm))
	i, _ := slices.BinarySearchFunc(s.VMAs.Items, c.Addr, func(v VMA, addr uint64) int {
		switch {
		case v.Left < addr:
			return -1
		case v.Left > addr:
			return 1
		}
		return 0
	})
	s.VMAs.Items = slices.Insert(s.VMAs.Items, i, vma)
	return int64(c.Addr), nil
}

func (c Mmap) MarshalBinary() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint64(nil, c.Addr)
	buf = binary.LittleEndian.AppendUint64(buf, c.Len)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Perm))
	return command.Frame(c.Kind(), buf), nil
}

func (c Mmap) String() string {
	return fmt.Sprintf("mmap %#x %#x %s", c.Addr, c.Len, c.Perm)
}

// Munmap removes [Addr, Addr+Len) from every mapping it overlaps, splitting
// mappings as needed. Unmapping a hole is not an error.
type Munmap struct {
	Addr uint64
	Len  uint64
}

func (Munmap) Kind() command.Kind { return KindMunmap }

func (c Munmap) Execute(s *State) (int64, error) {
	if c.Len == 0 || c.Addr%PageSize != 0 || c.Len%PageSize != 0 || c.Addr+c.Len < c.Addr {
		return 0, command.Failed(EINVAL, "bad range")
	}
	hole := state.NewInterval(c.Addr, c.Addr+c.Len, state.Value[Perm]{})
	var out []VMA
	for _, v := range s.VMAs.Items {
		if !v.Overlaps(hole) {
			out = append(out, v)
			continue
		}
		out = append(out, v.Subtract(hole)...)
	}
	s.VMAs.Items = out
	return 0, nil
}

func (c Munmap) MarshalBinary() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint64(nil, c.Addr)
	buf = binary.LittleEndian.AppendUint64(buf, c.Len)
	return command.Frame(c.Kind(), buf), nil
}

func (c Munmap) String() string {
	return fmt.Sprintf("munmap %#x %#x", c.Addr, c.Len)
}

// Write appends N bytes to the file at Path, creating it, and returns N.
type Write struct {
	Path string
	N    int64
}

func (Write) Kind() command.Kind { return KindWrite }

func (c Write) Execute(s *State) (int64, error) {
	if c.Path == "" || c.N < 0 {
		return 0, command.Failed(EINVAL, "bad write")
	}
	size := s.Files.Entries[c.Path]
	if size.V > math.MaxInt64-c.N {
		return 0, command.Failed(EFBIG, "file too large")
	}
	s.Files.Set(c.Path, state.Val(size.V+c.N))
	return c.N, nil
}

func (c Write) MarshalBinary() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint64(nil, uint64(c.N))
	buf = append(buf, c.Path...)
	return command.Frame(c.Kind(), buf), nil
}

func (c Write) String() string {
	return fmt.Sprintf("write %s %d", c.Path, c.N)
}

// Stat reports whether Path exists. Its extra payload is the file size as
// an 8-byte little-endian word.
type Stat struct {
	Path string
}

func (Stat) Kind() command.Kind { return KindStat }

func (c Stat) Execute(s *State) (int64, error) {
	if _, ok := s.Files.Entries[c.Path]; !ok {
		return 0, command.Failed(ENOENT, "no such file")
	}
	return 0, nil
}

// Extra implements command.ExtraProducer.
func (c Stat) Extra(s *State) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(s.Files.Entries[c.Path].V))
}

func (c Stat) MarshalBinary() ([]byte, error) {
	return command.Frame(c.Kind(), []byte(c.Path)), nil
}

func (c Stat) String() string {
	return fmt.Sprintf("stat %s", c.Path)
}
