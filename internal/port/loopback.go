package port

import (
	"context"
	"fmt"

	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/state"
)

// Loopback is a Port that runs every command against an in-process mirror
// instead of a real target. It is the reference target for the checker:
// given an independent mirror it must agree with the model on every round.
//
// By default a snapshot is built with Update, so Ignored cells keep the
// values newState gives them. SetCodec makes snapshots carry every encoded
// field instead, the way a memory transport would deliver them.
type Loopback[S state.AbstractState[S]] struct {
	mirror   *Shared[S]
	newState func() S
	chunks   int
	encode   Encoder[S]
	decode   Decoder[S]

	retv    int64
	pending bool
	extra   []byte

	retrieving bool
	remaining  int
}

// LoopbackOption configures a Loopback.
type LoopbackOption func(*loopbackConfig)

type loopbackConfig struct {
	chunks int
}

// WithChunks makes each retrieval report "not finished" n times before
// finishing, emulating a multi-exchange transport.
func WithChunks(n int) LoopbackOption {
	return func(c *loopbackConfig) {
		if n > 0 {
			c.chunks = n
		}
	}
}

// NewLoopback creates a loopback port over mirror. newState returns the empty
// value that snapshots are built from.
func NewLoopback[S state.AbstractState[S]](mirror *Shared[S], newState func() S, opts ...LoopbackOption) *Loopback[S] {
	cfg := loopbackConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loopback[S]{
		mirror:   mirror,
		newState: newState,
		chunks:   cfg.chunks,
	}
}

// SetCodec makes FinishStateRetrieval copy the mirror by encoding and
// decoding it. It returns l.
func (l *Loopback[S]) SetCodec(enc Encoder[S], dec Decoder[S]) *Loopback[S] {
	l.encode = enc
	l.decode = dec
	return l
}

// SendCommand executes cmd on the mirror and holds its result code.
func (l *Loopback[S]) SendCommand(_ context.Context, cmd command.Command[S]) error {
	target := l.mirror.Get()
	retv, err := cmd.Execute(target)
	if err != nil {
		code, ok := command.FailureCode(err)
		if !ok {
			return ioErr("send", fmt.Errorf("execute %s: %w", cmd, err))
		}
		retv = code
	}
	l.retv = retv
	l.pending = true
	l.extra = nil
	if p, ok := cmd.(command.ExtraProducer[S]); ok {
		l.extra = p.Extra(target)
	}
	return nil
}

// ReceiveResult returns the mirror's result for the last command.
func (l *Loopback[S]) ReceiveResult(context.Context) (int64, error) {
	if !l.pending {
		return 0, ioErr("receive", ErrNoCommand)
	}
	l.pending = false
	return l.retv, nil
}

// ReceiveExtra returns the mirror's extra payload, truncated or zero-padded
// to length.
func (l *Loopback[S]) ReceiveExtra(_ context.Context, length int) ([]byte, error) {
	out := make([]byte, length)
	copy(out, l.extra)
	return out, nil
}

// StartStateRetrieval implements StateChannel.
func (l *Loopback[S]) StartStateRetrieval(context.Context) error {
	l.retrieving = true
	l.remaining = l.chunks
	return nil
}

// RetrieveStateData implements StateChannel.
func (l *Loopback[S]) RetrieveStateData(context.Context) (bool, error) {
	if !l.retrieving {
		return false, ioErr("retrieve", ErrNotRetrieving)
	}
	if l.remaining > 0 {
		l.remaining--
		return false, nil
	}
	return true, nil
}

// FinishStateRetrieval returns a snapshot of the mirror that shares no
// storage with it.
func (l *Loopback[S]) FinishStateRetrieval(context.Context) (S, error) {
	var zero S
	if !l.retrieving {
		return zero, ioErr("finish", ErrNotRetrieving)
	}
	if l.remaining > 0 {
		return zero, ioErr("finish", ErrIncomplete)
	}
	l.retrieving = false

	if l.encode != nil && l.decode != nil {
		data, err := l.encode(l.mirror.Get())
		if err != nil {
			return zero, ioErr("finish", err)
		}
		snap, err := l.decode(data)
		if err != nil {
			return zero, ioErr("finish", err)
		}
		return snap, nil
	}
	snap := l.newState()
	snap.Update(l.mirror.Get())
	return snap, nil
}
