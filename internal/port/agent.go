package port

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/mem"
)

// CommandDecoder rebuilds a command from its wire frame.
type CommandDecoder[S any] func(frame []byte) (command.Command[S], error)

// Encoder serializes a target state for retrieval.
type Encoder[S any] func(s S) ([]byte, error)

// JSONEncoder encodes a state as JSON.
func JSONEncoder[S any]() Encoder[S] {
	return func(s S) ([]byte, error) {
		return json.Marshal(s)
	}
}

// MemAgent is the target side of a MemPort: it services the mailboxes in
// memory against its own state. Its Service method is meant to be installed
// as the port's Doorbell.
type MemAgent[S any] struct {
	rw     mem.ReadWriter
	layout Layout
	state  S
	decode CommandDecoder[S]
	encode Encoder[S]
}

// NewMemAgent creates an agent owning s.
func NewMemAgent[S any](rw mem.ReadWriter, layout Layout, s S, decode CommandDecoder[S], encode Encoder[S]) *MemAgent[S] {
	return &MemAgent[S]{
		rw:     rw,
		layout: layout,
		state:  s,
		decode: decode,
		encode: encode,
	}
}

// State returns the agent's live state.
func (a *MemAgent[S]) State() S {
	return a.state
}

// Service answers a posted command and a raised state request, if any.
func (a *MemAgent[S]) Service(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.serviceCommand(); err != nil {
		return err
	}
	return a.serviceState()
}

func (a *MemAgent[S]) serviceCommand() error {
	n, err := a.word(a.layout.CommandAddr)
	if err != nil || n == 0 {
		return err
	}
	if n > MaxStateSize {
		return fmt.Errorf("command frame length %d exceeds %d", n, MaxStateSize)
	}
	frame := make([]byte, n)
	if err := a.rw.Read(a.layout.Space, a.layout.CommandAddr+8, frame); err != nil {
		return err
	}
	cmd, err := a.decode(frame)
	if err != nil {
		return fmt.Errorf("decode command: %w", err)
	}

	retv, err := cmd.Execute(a.state)
	if err != nil {
		code, ok := command.FailureCode(err)
		if !ok {
			return fmt.Errorf("execute %s: %w", cmd, err)
		}
		retv = code
	}
	if p, ok := cmd.(command.ExtraProducer[S]); ok {
		if err := a.rw.Write(a.layout.Space, a.layout.ExtraAddr, p.Extra(a.state)); err != nil {
			return err
		}
	}
	if err := a.setWord(a.layout.ResultAddr, uint64(retv)); err != nil {
		return err
	}
	return a.setWord(a.layout.CommandAddr, 0)
}

func (a *MemAgent[S]) serviceState() error {
	flag, err := a.word(a.layout.RequestAddr)
	if err != nil || flag == 0 {
		return err
	}
	data, err := a.encode(a.state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := a.rw.Write(a.layout.Space, a.layout.StateAddr, data); err != nil {
		return err
	}
	if err := a.setWord(a.layout.StateLenAddr, uint64(len(data))); err != nil {
		return err
	}
	return a.setWord(a.layout.RequestAddr, 0)
}

func (a *MemAgent[S]) word(addr uint64) (uint64, error) {
	var b [8]byte
	if err := a.rw.Read(a.layout.Space, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (a *MemAgent[S]) setWord(addr, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return a.rw.Write(a.layout.Space, addr, b[:])
}
