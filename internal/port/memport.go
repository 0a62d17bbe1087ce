package port

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/mem"
)

// Layout places the mailbox words and buffers in target memory. All words
// are 8-byte little-endian.
type Layout struct {
	Space mem.Space

	// CommandAddr holds a length word followed by the command frame.
	CommandAddr uint64
	// ResultAddr holds the result word.
	ResultAddr uint64
	// ExtraAddr holds the extra payload of the last command.
	ExtraAddr uint64
	// RequestAddr holds the state request flag.
	RequestAddr uint64
	// StateLenAddr holds the length of the encoded state.
	StateLenAddr uint64
	// StateAddr holds the encoded state.
	StateAddr uint64

	// ChunkSize bounds the bytes read per RetrieveStateData call.
	ChunkSize int
}

// DefaultLayout returns the layout used by the in-process demo target.
func DefaultLayout() Layout {
	return Layout{
		Space:        mem.Virtual,
		CommandAddr:  0x1000,
		ResultAddr:   0x2000,
		ExtraAddr:    0x2100,
		RequestAddr:  0x3000,
		StateLenAddr: 0x3008,
		StateAddr:    0x10000,
		ChunkSize:    256,
	}
}

// MaxStateSize bounds the encoded state a target may announce.
const MaxStateSize = 16 << 20

// Decoder turns an accumulated state buffer into a snapshot.
type Decoder[S any] func(data []byte) (S, error)

// JSONDecoder decodes JSON into a fresh value from newState.
func JSONDecoder[S any](newState func() S) Decoder[S] {
	return func(data []byte) (S, error) {
		s := newState()
		if err := json.Unmarshal(data, s); err != nil {
			var zero S
			return zero, fmt.Errorf("decode state: %w", err)
		}
		return s, nil
	}
}

// Doorbell hands control to the target after the port posted a request and
// returns once the target has answered.
type Doorbell func(ctx context.Context) error

// MemPort is a Port over the memory capability.
type MemPort[S any] struct {
	rw       mem.ReadWriter
	layout   Layout
	decode   Decoder[S]
	doorbell Doorbell

	buf        []byte
	want       uint64
	retrieving bool
}

// MemOption configures a MemPort.
type MemOption func(*memConfig)

type memConfig struct {
	layout   Layout
	doorbell Doorbell
}

// WithLayout overrides DefaultLayout.
func WithLayout(l Layout) MemOption {
	return func(c *memConfig) {
		c.layout = l
	}
}

// WithDoorbell sets the hook rung after every posted request.
func WithDoorbell(d Doorbell) MemOption {
	return func(c *memConfig) {
		c.doorbell = d
	}
}

// NewMemPort creates a port reading and writing target memory through rw.
func NewMemPort[S any](rw mem.ReadWriter, decode Decoder[S], opts ...MemOption) *MemPort[S] {
	cfg := memConfig{layout: DefaultLayout()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.layout.ChunkSize <= 0 {
		cfg.layout.ChunkSize = DefaultLayout().ChunkSize
	}
	return &MemPort[S]{
		rw:       rw,
		layout:   cfg.layout,
		decode:   decode,
		doorbell: cfg.doorbell,
	}
}

// SendCommand writes the length-prefixed frame to the command mailbox.
func (p *MemPort[S]) SendCommand(ctx context.Context, cmd command.Command[S]) error {
	if err := ctx.Err(); err != nil {
		return ioErr("send", err)
	}
	frame, err := cmd.MarshalBinary()
	if err != nil {
		return ioErr("send", fmt.Errorf("marshal %s: %w", cmd, err))
	}
	buf := binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(frame)), uint64(len(frame)))
	buf = append(buf, frame...)
	if err := p.rw.Write(p.layout.Space, p.layout.CommandAddr, buf); err != nil {
		return ioErr("send", err)
	}
	return p.ring(ctx, "send")
}

// ReceiveResult reads the result word.
func (p *MemPort[S]) ReceiveResult(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, ioErr("receive", err)
	}
	word, err := p.readWord(p.layout.ResultAddr)
	if err != nil {
		return 0, ioErr("receive", err)
	}
	return int64(word), nil
}

// ReceiveExtra reads length bytes from the extra buffer.
func (p *MemPort[S]) ReceiveExtra(ctx context.Context, length int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ioErr("extra", err)
	}
	out := make([]byte, length)
	if err := p.rw.Read(p.layout.Space, p.layout.ExtraAddr, out); err != nil {
		return nil, ioErr("extra", err)
	}
	return out, nil
}

// StartStateRetrieval raises the request flag and reads the announced
// state length.
func (p *MemPort[S]) StartStateRetrieval(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ioErr("start", err)
	}
	if err := p.writeWord(p.layout.RequestAddr, 1); err != nil {
		return ioErr("start", err)
	}
	if err := p.ring(ctx, "start"); err != nil {
		return err
	}
	n, err := p.readWord(p.layout.StateLenAddr)
	if err != nil {
		return ioErr("start", err)
	}
	if n > MaxStateSize {
		return ioErr("start", fmt.Errorf("state length %d exceeds %d", n, MaxStateSize))
	}
	p.want = n
	p.buf = make([]byte, 0, n)
	p.retrieving = true
	return nil
}

// RetrieveStateData reads the next chunk.
func (p *MemPort[S]) RetrieveStateData(ctx context.Context) (bool, error) {
	if !p.retrieving {
		return false, ioErr("retrieve", ErrNotRetrieving)
	}
	if err := ctx.Err(); err != nil {
		return false, ioErr("retrieve", err)
	}
	have := uint64(len(p.buf))
	if have >= p.want {
		return true, nil
	}
	n := min(p.want-have, uint64(p.layout.ChunkSize))
	chunk := make([]byte, n)
	if err := p.rw.Read(p.layout.Space, p.layout.StateAddr+have, chunk); err != nil {
		return false, ioErr("retrieve", err)
	}
	p.buf = append(p.buf, chunk...)
	return uint64(len(p.buf)) >= p.want, nil
}

// FinishStateRetrieval decodes the accumulated buffer.
func (p *MemPort[S]) FinishStateRetrieval(context.Context) (S, error) {
	var zero S
	if !p.retrieving {
		return zero, ioErr("finish", ErrNotRetrieving)
	}
	if uint64(len(p.buf)) < p.want {
		return zero, ioErr("finish", ErrIncomplete)
	}
	data := p.buf
	p.buf, p.want, p.retrieving = nil, 0, false

	s, err := p.decode(data)
	if err != nil {
		return zero, ioErr("finish", err)
	}
	return s, nil
}

func (p *MemPort[S]) ring(ctx context.Context, op string) error {
	if p.doorbell == nil {
		return nil
	}
	if err := p.doorbell(ctx); err != nil {
		return ioErr(op, fmt.Errorf("doorbell: %w", err))
	}
	return nil
}

func (p *MemPort[S]) readWord(addr uint64) (uint64, error) {
	var b [8]byte
	if err := p.rw.Read(p.layout.Space, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (p *MemPort[S]) writeWord(addr, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return p.rw.Write(p.layout.Space, addr, b[:])
}
