package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/roach88/kmc/internal/command"
)

// ErrBadPayload is returned for frames whose payload does not fit the kind.
var ErrBadPayload = errors.New("bad command payload")

// DecodeCommand rebuilds a command from a frame written by MarshalBinary.
func DecodeCommand(frame []byte) (command.Command[*State], error) {
	kind, payload, err := command.ParseFrame(frame)
	if err != nil {
		return nil, err
	}
	word := func(i int) uint64 {
		return binary.LittleEndian.Uint64(payload[8*i:])
	}
	need := func(n int) error {
		if len(payload) < n {
			return fmt.Errorf("kind %d: %w: %d bytes, want %d", kind, ErrBadPayload, len(payload), n)
		}
		return nil
	}

	switch kind {
	case KindSpawn:
		return Spawn{}, nil
	case KindSched:
		return Sched{}, nil
	case KindExit:
		return Exit{}, nil
	case KindMmap:
		if err := need(24); err != nil {
			return nil, err
		}
		return Mmap{Addr: word(0), Len: word(1), Perm: Perm(word(2))}, nil
	case KindMunmap:
		if err := need(16); err != nil {
			return nil, err
		}
		return Munmap{Addr: word(0), Len: word(1)}, nil
	case KindWrite:
		if err := need(8); err != nil {
			return nil, err
		}
		return Write{N: int64(word(0)), Path: string(payload[8:])}, nil
	case KindStat:
		return Stat{Path: string(payload)}, nil
	default:
		return nil, fmt.Errorf("unknown command kind %d", kind)
	}
}
