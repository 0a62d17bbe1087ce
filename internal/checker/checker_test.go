package checker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/kernel"
	"github.com/roach88/kmc/internal/port"
)

var protocolScript = []string{"spawn", "sched", "sched", "spawn", "sched", "exit"}

type linePrinter struct {
	lines []string
}

func (p *linePrinter) Print(s string) { p.lines = append(p.lines, s) }

func (p *linePrinter) String() string { return strings.Join(p.lines, "\n") + "\n" }

type reportLog struct {
	reports []RoundReport
	err     error
}

func (r *reportLog) ObserveRound(_ context.Context, rr RoundReport) error {
	r.reports = append(r.reports, rr)
	return r.err
}

// faultyPort is a loopback that can misbehave on chosen rounds.
type faultyPort struct {
	*port.Loopback[*kernel.State]
	mirror *port.Shared[*kernel.State]
	sent   int

	corrupt   map[int]int64 // round -> delta added to the result
	diverge   map[int]bool  // round -> extra spawn on the mirror
	badExtra  bool
	failStart error
}

func (f *faultyPort) SendCommand(ctx context.Context, cmd command.Command[*kernel.State]) error {
	if err := f.Loopback.SendCommand(ctx, cmd); err != nil {
		return err
	}
	f.sent++
	if f.diverge[f.sent-1] {
		_, _ = kernel.Spawn{}.Execute(f.mirror.Get())
	}
	return nil
}

func (f *faultyPort) ReceiveResult(ctx context.Context) (int64, error) {
	retv, err := f.Loopback.ReceiveResult(ctx)
	return retv + f.corrupt[f.sent-1], err
}

func (f *faultyPort) ReceiveExtra(ctx context.Context, length int) ([]byte, error) {
	if f.badExtra {
		return bytes.Repeat([]byte{0xff}, length), nil
	}
	return f.Loopback.ReceiveExtra(ctx, length)
}

func (f *faultyPort) StartStateRetrieval(ctx context.Context) error {
	if f.failStart != nil {
		return &port.IOError{Op: "start", Err: f.failStart}
	}
	return f.Loopback.StartStateRetrieval(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFaultyPort(opts ...port.LoopbackOption) *faultyPort {
	mirror := port.NewShared(kernel.NewState(100))
	return &faultyPort{
		Loopback: port.NewLoopback(mirror, kernel.Empty, opts...),
		mirror:   mirror,
	}
}

func newSession(t *testing.T, lines []string, p *faultyPort, opts ...Option) *Checker[*kernel.State] {
	t.Helper()
	if p == nil {
		p = newFaultyPort()
	}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	script := command.NewScript(kernel.Commands(), lines)
	return New[*kernel.State](script, p, kernel.NewState(0), opts...)
}

func TestChecker_ProtocolScenario(t *testing.T) {
	reports := &reportLog{}
	c := newSession(t, protocolScript, nil, WithObserver(reports))

	require.NoError(t, c.Run(context.Background(), 0))

	assert.Equal(t, 6, c.Stats().Rounds)
	assert.Equal(t, 0, c.Stats().Mismatches())
	require.Len(t, reports.reports, 6)
	for i, r := range reports.reports {
		assert.Equal(t, i, r.Round)
		assert.Equal(t, protocolScript[i], r.Command)
		assert.True(t, r.RetvMatch, "round %d", i)
		assert.True(t, r.StateChecked, "round %d", i)
		assert.True(t, r.StateMatch, "round %d", i)
	}
	assert.Equal(t, 1, c.Model().Tasks.Len())
}

func TestChecker_StepTransitions(t *testing.T) {
	c := newSession(t, protocolScript, nil)
	ctx := context.Background()

	want := []Phase{
		PhaseGetState, PhaseInit, PhaseCommand,
		PhaseCheckRetv, PhaseGetState, PhaseCheckState, PhaseCommand,
		PhaseCheckRetv,
	}
	assert.Equal(t, PhaseStart, c.Phase())
	for i, phase := range want {
		require.NoError(t, c.Step(ctx))
		assert.Equal(t, phase, c.Phase(), "after step %d", i+1)
	}
	assert.Equal(t, 1, c.Round())
}

func TestChecker_MultiExchangeRetrieval(t *testing.T) {
	const chunks = 3
	c := newSession(t, protocolScript, newFaultyPort(port.WithChunks(chunks)))
	ctx := context.Background()

	countGetState := func() int {
		calls := 0
		for c.Phase() == PhaseGetState {
			require.NoError(t, c.Step(ctx))
			calls++
		}
		return calls
	}

	require.NoError(t, c.Step(ctx))
	assert.Equal(t, chunks+1, countGetState())
	assert.Equal(t, PhaseInit, c.Phase())

	require.NoError(t, c.Step(ctx)) // Init
	require.NoError(t, c.Step(ctx)) // Command
	require.NoError(t, c.Step(ctx)) // CheckRetv
	assert.Equal(t, chunks+1, countGetState())
	assert.Equal(t, PhaseCheckState, c.Phase())
	assert.Equal(t, 2*(chunks+1), c.Stats().Exchanges)
}

func TestChecker_StrictRetvAbort(t *testing.T) {
	p := newFaultyPort()
	p.corrupt = map[int]int64{1: 1}
	reports := &reportLog{}
	c := newSession(t, protocolScript, p, WithObserver(reports))
	ctx := context.Background()

	var err error
	var failedIn Phase
	for err == nil {
		failedIn = c.Phase()
		err = c.Step(ctx)
	}

	assert.Equal(t, PhaseCheckRetv, failedIn)
	assert.True(t, IsReturnValueMismatch(err))
	var ce *CheckError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Round)
	assert.Equal(t, PhaseCheckRetv, ce.Phase)

	next := c.Step(ctx)
	assert.ErrorIs(t, next, ErrHalted)
	assert.True(t, IsReturnValueMismatch(next))
	assert.Equal(t, PhaseCheckRetv, c.Phase(), "no progress after halting")
	assert.Equal(t, err, c.Err())

	require.Len(t, reports.reports, 2)
	assert.False(t, reports.reports[1].RetvMatch)
	assert.False(t, reports.reports[1].StateChecked)
	assert.Nil(t, reports.reports[1].Target)
}

func TestChecker_RelaxedRetvContinues(t *testing.T) {
	p := newFaultyPort()
	p.corrupt = map[int]int64{1: 1}
	printer := &linePrinter{}
	c := newSession(t, protocolScript, p, WithRetvSeverity(Relaxed), WithPrinter(printer))

	require.NoError(t, c.Run(context.Background(), 0))

	assert.Equal(t, 6, c.Stats().Rounds)
	assert.Equal(t, 1, c.Stats().RetvMismatches)
	assert.Contains(t, printer.lines, "Return value mismatch")
	assert.Contains(t, printer.lines, "Expected: 0x0, Got: 0x1")
}

func TestChecker_RetvNoneSkipsComparison(t *testing.T) {
	p := newFaultyPort()
	p.corrupt = map[int]int64{0: 5, 3: 5}
	printer := &linePrinter{}
	c := newSession(t, protocolScript, p, WithRetvSeverity(None), WithPrinter(printer))

	require.NoError(t, c.Run(context.Background(), 0))
	assert.Equal(t, 0, c.Stats().RetvMismatches)
	assert.NotContains(t, printer.lines, "Return value mismatch")
}

func TestChecker_StrictStateMismatch(t *testing.T) {
	p := newFaultyPort()
	p.diverge = map[int]bool{2: true}
	reports := &reportLog{}
	printer := &linePrinter{}
	c := newSession(t, protocolScript, p, WithObserver(reports), WithPrinter(printer))

	err := c.Run(context.Background(), 0)

	require.True(t, IsStateMismatch(err), "got %v", err)
	var ce *CheckError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Round)
	assert.Equal(t, PhaseCheckState, ce.Phase)

	require.Len(t, reports.reports, 3)
	last := reports.reports[2]
	assert.True(t, last.StateChecked)
	assert.False(t, last.StateMatch)
	assert.NotNil(t, last.Target)

	n := len(printer.lines)
	assert.Equal(t, []string{"State mismatch", "Expected:"}, printer.lines[n-5:n-3])
	assert.Equal(t, "Got:", printer.lines[n-2])
}

func TestChecker_RelaxedStateMismatchContinues(t *testing.T) {
	p := newFaultyPort()
	p.diverge = map[int]bool{2: true}
	c := newSession(t, protocolScript, p, WithStateSeverity(Relaxed))

	require.NoError(t, c.Run(context.Background(), 0))
	assert.Equal(t, 6, c.Stats().Rounds)
	assert.Equal(t, 4, c.Stats().StateMismatches, "divergence persists from round 2 on")
}

func TestChecker_ExecutionFailedIsChecked(t *testing.T) {
	reports := &reportLog{}
	c := newSession(t, []string{"sched", "spawn", "exit", "exit"}, nil, WithObserver(reports))

	require.NoError(t, c.Run(context.Background(), 0))
	assert.Equal(t, 2, c.Stats().ExecutionFailures)
	assert.Equal(t, 0, c.Stats().Mismatches())
	assert.Equal(t, int64(kernel.ENOENT), reports.reports[0].Expected)
	assert.Equal(t, int64(kernel.ESRCH), reports.reports[3].Got)
}

func TestChecker_FailFastPolicy(t *testing.T) {
	script := command.FailFast[*kernel.State](command.NewScript(kernel.Commands(), []string{"spawn", "exit", "exit"}))
	c := New[*kernel.State](script, newFaultyPort(), kernel.NewState(0), WithLogger(discardLogger()))

	err := c.Run(context.Background(), 0)

	assert.True(t, IsExecutionFailed(err))
	code, ok := command.FailureCode(err)
	require.True(t, ok)
	assert.Equal(t, int64(kernel.ESRCH), code)
	assert.Equal(t, 2, c.Stats().Rounds)
}

func TestChecker_ExtraPayload(t *testing.T) {
	lines := []string{"write /tmp/a 7", "stat /tmp/a"}

	t.Run("match", func(t *testing.T) {
		c := newSession(t, lines, nil)
		require.NoError(t, c.Run(context.Background(), 0))
		assert.Equal(t, 0, c.Stats().ExtraMismatches)
	})

	t.Run("strict mismatch", func(t *testing.T) {
		p := newFaultyPort()
		p.badExtra = true
		c := newSession(t, lines, p)

		err := c.Run(context.Background(), 0)
		assert.True(t, IsReturnValueMismatch(err))
		assert.Equal(t, 1, c.Stats().ExtraMismatches)
		assert.Equal(t, 1, c.Stats().Rounds)
	})

	t.Run("relaxed mismatch", func(t *testing.T) {
		p := newFaultyPort()
		p.badExtra = true
		printer := &linePrinter{}
		c := newSession(t, lines, p, WithRetvSeverity(Relaxed), WithPrinter(printer))

		require.NoError(t, c.Run(context.Background(), 0))
		assert.Equal(t, 1, c.Stats().ExtraMismatches)
		assert.Contains(t, printer.lines, "Extra mismatch")
		assert.Contains(t, printer.lines, "Expected: 0700000000000000, Got: ffffffffffffffff")
	})
}

func TestChecker_IOError(t *testing.T) {
	p := newFaultyPort()
	p.failStart = errors.New("target unreachable")
	c := newSession(t, protocolScript, p)

	err := c.Step(context.Background())

	assert.True(t, IsIOError(err))
	assert.True(t, port.IsIOError(err))
	assert.Contains(t, err.Error(), "target unreachable")
	assert.Equal(t, PhaseStart, c.Phase())
}

func TestChecker_Exhaustion(t *testing.T) {
	c := newSession(t, []string{"spawn"}, nil)
	ctx := context.Background()

	require.NoError(t, c.RunRound(ctx))
	err := c.RunRound(ctx)
	assert.True(t, command.IsExhausted(err))
	assert.True(t, IsDone(err))

	assert.True(t, command.IsExhausted(c.Step(ctx)), "exhaustion is sticky")
	assert.NoError(t, c.Err())
	assert.Equal(t, 1, c.Stats().Rounds)
}

func TestChecker_MaxRounds(t *testing.T) {
	random := command.NewRandom(11, 0, kernel.Generators()...)
	c := New[*kernel.State](random, newFaultyPort(port.WithChunks(1)), kernel.NewState(0), WithLogger(discardLogger()))

	require.NoError(t, c.Run(context.Background(), 25))
	assert.Equal(t, 25, c.Stats().Rounds)
	assert.Equal(t, 0, c.Stats().Mismatches())
}

func TestChecker_RunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newSession(t, protocolScript, nil)

	assert.ErrorIs(t, c.Run(ctx, 0), context.Canceled)
}

func TestChecker_ObserverError(t *testing.T) {
	reports := &reportLog{err: errors.New("disk full")}
	c := newSession(t, protocolScript, nil, WithObserver(reports))

	err := c.Run(context.Background(), 0)

	var ce *CheckError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeObserver, ce.Code)
}

func TestChecker_CommanderError(t *testing.T) {
	tests := []struct {
		name    string
		cmd     command.Command[*kernel.State]
		err     error
		wantMsg string
	}{
		{"generator error", nil, errors.New("generator crashed"), "generator crashed"},
		{"nil command", nil, nil, "commander returned no command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := command.Func[*kernel.State](func(*kernel.State) (command.Command[*kernel.State], error) {
				return tt.cmd, tt.err
			})
			c := New[*kernel.State](gen, newFaultyPort(), kernel.NewState(0), WithLogger(discardLogger()))

			err := c.Run(context.Background(), 0)

			var ce *CheckError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, CodeCommander, ce.Code)
			assert.Equal(t, PhaseCommand, ce.Phase)
			assert.Contains(t, ce.Error(), tt.wantMsg)
		})
	}
}

func TestChecker_GoldenTrace(t *testing.T) {
	p := newFaultyPort()
	p.corrupt = map[int]int64{1: 1}
	p.diverge = map[int]bool{2: true}
	printer := &linePrinter{}
	c := newSession(t, []string{"spawn", "write /tmp/a 3", "stat /tmp/a"}, p,
		WithRetvSeverity(Relaxed),
		WithStateSeverity(Relaxed),
		WithPrinter(printer),
	)

	require.NoError(t, c.Run(context.Background(), 0))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "relaxed_trace", []byte(printer.String()))
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"none", None, false},
		{"Relaxed", Relaxed, false},
		{" STRICT ", Strict, false},
		{"fatal", None, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckError_Error(t *testing.T) {
	err := &CheckError{
		Code:    CodeReturnValueMismatch,
		Round:   1,
		Phase:   PhaseCheckRetv,
		Message: "expected 0x0, got 0x1",
	}
	assert.Equal(t, "RETURN_VALUE_MISMATCH: expected 0x0, got 0x1 (round=1, phase=CheckRetv)", err.Error())

	wrapped := &CheckError{Code: CodeIOError, Phase: PhaseStart, Message: "start", Err: io.EOF}
	assert.ErrorIs(t, wrapped, io.EOF)
	assert.True(t, IsIOError(wrapped))
	assert.False(t, IsStateMismatch(wrapped))
}
