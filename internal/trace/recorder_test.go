package trace

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kmc/internal/checker"
	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/ir"
	"github.com/roach88/kmc/internal/kernel"
	"github.com/roach88/kmc/internal/port"
	"github.com/roach88/kmc/internal/store"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// skewedPort reports every result one higher than the mirror produced.
type skewedPort struct {
	*port.Loopback[*kernel.State]
}

func (p skewedPort) ReceiveResult(ctx context.Context) (int64, error) {
	retv, err := p.Loopback.ReceiveResult(ctx)
	return retv + 1, err
}

func runSession(t *testing.T, rec *Recorder, p port.Port[*kernel.State], lines []string, opts ...checker.Option) (checker.Stats, error) {
	t.Helper()
	ctx := context.Background()

	_, err := rec.Begin(ctx)
	require.NoError(t, err)

	opts = append([]checker.Option{
		checker.WithObserver(rec),
		checker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	c := checker.New[*kernel.State](command.NewScript(kernel.Commands(), lines), p, kernel.NewState(0), opts...)
	runErr := c.Run(ctx, 0)
	require.NoError(t, rec.End(ctx, c.Stats(), runErr))
	return c.Stats(), runErr
}

func loopback() *port.Loopback[*kernel.State] {
	return port.NewLoopback(port.NewShared(kernel.NewState(100)), kernel.Empty)
}

func TestRecorder_PassingSession(t *testing.T) {
	st := createTestStore(t)
	rec := NewRecorder(st, NewFixedGenerator("session-1"), "spawn-exit")

	_, err := runSession(t, rec, loopback(), []string{"spawn", "sched", "exit"})
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := st.ReadSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPassed, sess.Status)
	assert.Equal(t, "spawn-exit", sess.Scenario)
	assert.Equal(t, 3, sess.Rounds)

	rounds, err := st.ReadRounds(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	for i, r := range rounds {
		assert.Equal(t, i, r.Round)
		assert.True(t, r.StateMatch)
		assert.NotEmpty(t, r.ModelDigest)
		assert.NotEmpty(t, r.StateDigest)
	}
	assert.Equal(t, "spawn", rounds[0].Command)
	assert.Equal(t, int(kernel.KindSpawn), rounds[0].Kind)


	// After spawn+sched the model still holds one task; after exit it holds none.
	assert.NotEqual(t, rounds[1].ModelDigest, rounds[2].ModelDigest)
}

func TestRecorder_StrictRetvMismatch(t *testing.T) {
	st := createTestStore(t)
	rec := NewRecorder(st, NewFixedGenerator("session-1"), "skewed")

	stats, err := runSession(t, rec, skewedPort{loopback()}, []string{"spawn", "exit"})
	require.Error(t, err)
	assert.True(t, checker.IsReturnValueMismatch(err))
	assert.Equal(t, 1, stats.RetvMismatches)

	ctx := context.Background()
	sess, err := st.ReadSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, sess.Status)
	assert.Contains(t, sess.Error, "RETURN_VALUE_MISMATCH")

	rounds, err := st.ReadRounds(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.False(t, rounds[0].RetvMatch)
	assert.False(t, rounds[0].StateChecked)
	assert.Empty(t, rounds[0].StateDigest)
	assert.Equal(t, int64(0), rounds[0].Expected)
	assert.Equal(t, int64(1), rounds[0].Got)
}

func TestRecorder_RelaxedMismatchFailsSession(t *testing.T) {
	st := createTestStore(t)
	rec := NewRecorder(st, NewFixedGenerator("session-1"), "skewed")

	stats, err := runSession(t, rec, skewedPort{loopback()}, []string{"spawn", "exit"},
		checker.WithRetvSeverity(checker.Relaxed))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RetvMismatches)

	ctx := context.Background()
	sess, err := st.ReadSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, sess.Status)
	assert.Equal(t, "2 mismatches", sess.Error)

	mismatches, err := st.ReadMismatches(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, mismatches, 2)
}

func TestRecorder_NotStarted(t *testing.T) {
	rec := NewRecorder(createTestStore(t), nil, "x")

	err := rec.ObserveRound(context.Background(), checker.RoundReport{})
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, rec.End(context.Background(), checker.Stats{}, nil), ErrNotStarted)
	assert.Empty(t, rec.SessionID())
}

func TestRecorder_SessionsOrdered(t *testing.T) {
	st := createTestStore(t)
	ids := NewFixedGenerator("b", "a")

	for range 2 {
		rec := NewRecorder(st, ids, "order")
		_, err := runSession(t, rec, loopback(), []string{"spawn"})
		require.NoError(t, err)
	}

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "b", sessions[0].ID)
	assert.Equal(t, "a", sessions[1].ID)
}
