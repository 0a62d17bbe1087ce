package kernel

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/roach88/kmc/internal/command"
)

// Commands returns a registry of every kernel command by name.
//
//	spawn | sched | exit
//	mmap <addr> <len> <perm>
//	munmap <addr> <len>
//	write <path> <n>
//	stat <path>
func Commands() *command.Registry[*State] {
	r := command.NewRegistry[*State]()
	r.MustRegister("spawn", noArgs(Spawn{}))
	r.MustRegister("sched", noArgs(Sched{}))
	r.MustRegister("exit", noArgs(Exit{}))
	r.MustRegister("mmap", func(args []string) (command.Command[*State], error) {
		if err := arity(args, 3); err != nil {
			return nil, err
		}
		addr, length, err := parseRange(args)
		if err != nil {
			return nil, err
		}
		perm, err := ParsePerm(args[2])
		if err != nil {
			return nil, err
		}
		return Mmap{Addr: addr, Len: length, Perm: perm}, nil
	})
	r.MustRegister("munmap", func(args []string) (command.Command[*State], error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		addr, length, err := parseRange(args)
		if err != nil {
			return nil, err
		}
		return Munmap{Addr: addr, Len: length}, nil
	})
	r.MustRegister("write", func(args []string) (command.Command[*State], error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(args[1], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("size: %w", err)
		}
		return Write{Path: args[0], N: n}, nil
	})
	r.MustRegister("stat", func(args []string) (command.Command[*State], error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		return Stat{Path: args[0]}, nil
	})
	return r
}

func noArgs(cmd command.Command[*State]) command.Factory[*State] {
	return func(args []string) (command.Command[*State], error) {
		if err := arity(args, 0); err != nil {
			return nil, err
		}
		return cmd, nil
	}
}

func arity(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("want %d arguments, got %d", n, len(args))
	}
	return nil
}

func parseRange(args []string) (uint64, uint64, error) {
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("address: %w", err)
	}
	length, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("length: %w", err)
	}
	return addr, length, nil
}

// Paths is the file namespace random sessions draw from.
var Paths = []string{"/etc/motd", "/tmp/a", "/tmp/b", "/var/log/kmsg"}

// arenaPages bounds random mappings to a small window so they collide.
const arenaPages = 64

// Generators returns the weighted generators for random sessions. Commands
// that would trivially fail in the current state are not proposed, except
// mmap which is allowed to collide.
func Generators() []command.Generator[*State] {
	return []command.Generator[*State]{
		{Name: "spawn", Weight: 3, Make: func(_ *rand.Rand, s *State) (command.Command[*State], bool) {
			return Spawn{}, s.Tasks.Len() < 16
		}},
		{Name: "sched", Weight: 4, Make: func(_ *rand.Rand, s *State) (command.Command[*State], bool) {
			return Sched{}, s.Tasks.Len() > 0
		}},
		{Name: "exit", Weight: 2, Make: func(_ *rand.Rand, s *State) (command.Command[*State], bool) {
			return Exit{}, s.Tasks.Len() > 0
		}},
		{Name: "mmap", Weight: 3, Make: func(rng *rand.Rand, _ *State) (command.Command[*State], bool) {
			return Mmap{
				Addr: uint64(rng.IntN(arenaPages)) * PageSize,
				Len:  uint64(1+rng.IntN(4)) * PageSize,
				Perm: Perm(1 + rng.IntN(7)),
			}, true
		}},
		{Name: "munmap", Weight: 2, Make: func(rng *rand.Rand, s *State) (command.Command[*State], bool) {
			if s.VMAs.Len() == 0 {
				return nil, false
			}
			v := s.VMAs.Items[rng.IntN(s.VMAs.Len())]
			pages := v.Len() / PageSize
			first := uint64(rng.IntN(int(pages)))
			n := 1 + uint64(rng.IntN(int(pages-first)))
			return Munmap{Addr: v.Left + first*PageSize, Len: n * PageSize}, true
		}},
		{Name: "write", Weight: 2, Make: func(rng *rand.Rand, _ *State) (command.Command[*State], bool) {
			return Write{Path: Paths[rng.IntN(len(Paths))], N: int64(rng.IntN(512))}, true
		}},
		{Name: "stat", Weight: 1, Make: func(rng *rand.Rand, _ *State) (command.Command[*State], bool) {
			return Stat{Path: Paths[rng.IntN(len(Paths))]}, true
		}},
	}
}
