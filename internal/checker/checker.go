package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/port"
	"github.com/roach88/kmc/internal/state"
)

// Option configures a Checker.
type Option func(*config)

type config struct {
	retv     Severity
	state    Severity
	printer  Printer
	observer Observer
	logger   *slog.Logger
}

// WithRetvSeverity sets the severity of result code checks.
// Default: Strict.
func WithRetvSeverity(s Severity) Option {
	return func(c *config) {
		c.retv = s
	}
}

// WithStateSeverity sets the severity of state checks.
// Default: Strict.
func WithStateSeverity(s Severity) Option {
	return func(c *config) {
		c.state = s
	}
}

// WithPrinter sets the trace sink. Default: discard.
func WithPrinter(p Printer) Option {
	return func(c *config) {
		c.printer = p
	}
}

// WithObserver registers a round observer.
func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// mismatchReporter is implemented by states that can name the fields that
// differ, for diagnostics.
type mismatchReporter[S any] interface {
	Mismatches(other S) []string
}

// Checker owns the model state for one session and drives it against a port.
//
// INVARIANTS:
//   - exactly one transition per Step
//   - the model is only mutated by Init (baseline) and Command (execute)
//   - once halted, every Step returns ErrHalted
type Checker[S state.AbstractState[S]] struct {
	commander command.Commander[S]
	port      port.Port[S]
	model     S
	cfg       config

	phase       Phase
	initialized bool
	round       int
	stats       Stats

	cmd      command.Command[S]
	expected int64
	got      int64
	extra    []byte
	retvOK   bool
	extraOK  bool

	done   error // exhaustion
	halted error // fatal cause
}

// New creates a checker in the Start phase. model is the initial model
// state; it is overwritten by the target's state during Init.
func New[S state.AbstractState[S]](commander command.Commander[S], p port.Port[S], model S, opts ...Option) *Checker[S] {
	cfg := config{
		retv:    Strict,
		state:   Strict,
		printer: nopPrinter{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Checker[S]{
		commander: commander,
		port:      p,
		model:     model,
		cfg:       cfg,
		phase:     PhaseStart,
	}
}

// Phase returns the next transition to run.
func (c *Checker[S]) Phase() Phase { return c.phase }

// Round returns the number of the round in progress (0-based).
func (c *Checker[S]) Round() int { return c.round }

// Stats returns the counters so far.
func (c *Checker[S]) Stats() Stats { return c.stats }

// Model returns the model state. It must not be mutated by the caller.
func (c *Checker[S]) Model() S { return c.model }

// Err returns the fatal error that halted the session, if any.
func (c *Checker[S]) Err() error { return c.halted }

// Step runs exactly one transition.
//
// It returns an error wrapping command.ErrExhausted when the commander has
// no more commands, a *CheckError when the session fails, and ErrHalted
// (wrapping the cause) on any call after a failure.
func (c *Checker[S]) Step(ctx context.Context) error {
	if c.halted != nil {
		return fmt.Errorf("%w: %w", ErrHalted, c.halted)
	}
	if c.done != nil {
		return c.done
	}

	from := c.phase
	err := c.transition(ctx)
	switch {
	case err == nil:
		c.cfg.logger.Debug("checker step",
			"from", from.String(),
			"to", c.phase.String(),
			"round", c.round,
		)
		return nil
	case command.IsExhausted(err):
		c.done = err
		c.cfg.logger.Info("commander exhausted",
			"rounds", c.stats.Rounds,
			"event", "session_exhausted",
		)
		return err
	default:
		c.halted = err
		c.cfg.logger.Error("checker halted",
			"phase", from.String(),
			"round", c.round,
			"error", err,
			"event", "session_halted",
		)
		return err
	}
}

// RunRound steps until the current round is decided and the checker is back
// in the Command phase. The first call also performs initialization.
func (c *Checker[S]) RunRound(ctx context.Context) error {
	start := c.stats.Rounds
	for {
		if err := c.Step(ctx); err != nil {
			return err
		}
		if c.phase == PhaseCommand && c.stats.Rounds > start {
			return nil
		}
	}
}

// Run runs rounds until the commander is exhausted, a round fails, the
// context is done or maxRounds rounds have completed (0 means unbounded).
// Exhaustion is normal termination and returns nil.
func (c *Checker[S]) Run(ctx context.Context, maxRounds int) error {
	for maxRounds <= 0 || c.stats.Rounds < maxRounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.RunRound(ctx); err != nil {
			if command.IsExhausted(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (c *Checker[S]) transition(ctx context.Context) error {
	switch c.phase {
	case PhaseStart:
		return c.start(ctx)
	case PhaseGetState:
		return c.getState(ctx)
	case PhaseInit:
		return c.init(ctx)
	case PhaseCommand:
		return c.command(ctx)
	case PhaseCheckRetv:
		return c.checkRetv(ctx)
	case PhaseCheckState:
		return c.checkState(ctx)
	default:
		return fmt.Errorf("invalid phase %s", c.phase)
	}
}

func (c *Checker[S]) start(ctx context.Context) error {
	if err := c.port.StartStateRetrieval(ctx); err != nil {
		return c.fail(CodeIOError, "start state retrieval", err)
	}
	c.phase = PhaseGetState
	return nil
}

func (c *Checker[S]) getState(ctx context.Context) error {
	finished, err := c.port.RetrieveStateData(ctx)
	if err != nil {
		return c.fail(CodeIOError, "retrieve state data", err)
	}
	c.stats.Exchanges++
	if !finished {
		return nil
	}
	if c.initialized {
		c.phase = PhaseCheckState
	} else {
		c.phase = PhaseInit
	}
	return nil
}

func (c *Checker[S]) init(ctx context.Context) error {
	snap, err := c.port.FinishStateRetrieval(ctx)
	if err != nil {
		return c.fail(CodeIOError, "finish state retrieval", err)
	}
	c.model.Update(snap)
	c.initialized = true

	c.print("[ Initial State ]")
	c.print(dump(c.model))
	c.phase = PhaseCommand
	return nil
}

func (c *Checker[S]) command(ctx context.Context) error {
	cmd, err := c.commander.Command(c.model)
	if err != nil {
		if command.IsExhausted(err) {
			return err
		}
		return c.fail(CodeCommander, "next command", err)
	}
	if cmd == nil {
		return c.fail(CodeCommander, "commander returned no command", nil)
	}

	c.print(fmt.Sprintf("[ Round %d ]", c.round))
	c.print(fmt.Sprintf("Command: %s", cmd))

	expected, err := cmd.Execute(c.model)
	if err != nil {
		code, ok := command.FailureCode(err)
		if !ok {
			return c.fail(CodeExecutionFailed, fmt.Sprintf("execute %s on model", cmd), err)
		}
		c.stats.ExecutionFailures++
		c.cfg.logger.Debug("command failed on model",
			"round", c.round,
			"command", cmd.String(),
			"code", code,
		)
		if policy, ok := c.commander.(command.FailurePolicy[S]); ok {
			if perr := policy.OnExecutionFailed(cmd, code); perr != nil {
				return c.fail(CodeExecutionFailed, fmt.Sprintf("%s failed with %#x", cmd, code), perr)
			}
		}
		expected = code
	}

	c.cmd = cmd
	c.expected = expected
	c.extra = nil
	if p, ok := cmd.(command.ExtraProducer[S]); ok {
		c.extra = p.Extra(c.model)
	}

	if err := c.port.SendCommand(ctx, cmd); err != nil {
		return c.fail(CodeIOError, "send command", err)
	}
	c.phase = PhaseCheckRetv
	return nil
}

func (c *Checker[S]) checkRetv(ctx context.Context) error {
	got, err := c.port.ReceiveResult(ctx)
	if err != nil {
		return c.fail(CodeIOError, "receive result", err)
	}
	c.got = got
	c.retvOK, c.extraOK = true, true

	c.print(fmt.Sprintf("Expected: %#x, Got: %#x", c.expected, got))
	if c.cfg.retv != None && got != c.expected {
		c.retvOK = false
		c.stats.RetvMismatches++
		c.print("Return value mismatch")
		c.cfg.logger.Warn("return value mismatch",
			"round", c.round,
			"command", c.cmd.String(),
			"expected", c.expected,
			"got", got,
			"severity", c.cfg.retv.String(),
		)
		if c.cfg.retv == Strict {
			return c.abortRound(ctx, CodeReturnValueMismatch,
				fmt.Sprintf("expected %#x, got %#x", c.expected, got))
		}
	}

	if err := c.checkExtra(ctx); err != nil {
		return err
	}

	if err := c.port.StartStateRetrieval(ctx); err != nil {
		return c.fail(CodeIOError, "start state retrieval", err)
	}
	c.phase = PhaseGetState
	return nil
}

func (c *Checker[S]) checkExtra(ctx context.Context) error {
	if c.extra == nil || c.cfg.retv == None {
		return nil
	}
	rx, ok := c.port.(port.ExtraReceiver)
	if !ok {
		return nil
	}
	got, err := rx.ReceiveExtra(ctx, len(c.extra))
	if err != nil {
		return c.fail(CodeIOError, "receive extra", err)
	}
	if bytes.Equal(got, c.extra) {
		return nil
	}

	c.extraOK = false
	c.stats.ExtraMismatches++
	c.print("Extra mismatch")
	c.print(fmt.Sprintf("Expected: %x, Got: %x", c.extra, got))
	c.cfg.logger.Warn("extra payload mismatch",
		"round", c.round,
		"command", c.cmd.String(),
		"severity", c.cfg.retv.String(),
	)
	if c.cfg.retv == Strict {
		return c.abortRound(ctx, CodeReturnValueMismatch, "extra payload mismatch")
	}
	return nil
}

func (c *Checker[S]) checkState(ctx context.Context) error {
	snap, err := c.port.FinishStateRetrieval(ctx)
	if err != nil {
		return c.fail(CodeIOError, "finish state retrieval", err)
	}

	match := true
	if c.cfg.state != None && !snap.Matches(c.model) {
		match = false
		c.stats.StateMismatches++
		c.print("State mismatch")
		c.print("Expected:")
		c.print(dump(c.model))
		c.print("Got:")
		c.print(dump(snap))

		attrs := []any{
			"round", c.round,
			"command", c.cmd.String(),
			"severity", c.cfg.state.String(),
		}
		if r, ok := any(c.model).(mismatchReporter[S]); ok {
			attrs = append(attrs, "fields", r.Mismatches(snap))
		}
		c.cfg.logger.Warn("state mismatch", attrs...)
	}

	if err := c.report(ctx, true, match, snap); err != nil {
		return err
	}
	if !match && c.cfg.state == Strict {
		return c.fail(CodeStateMismatch, fmt.Sprintf("state diverged after %s", c.cmd), nil)
	}

	c.stats.Rounds++
	c.round++
	c.phase = PhaseCommand
	return nil
}

// abortRound reports the partially checked round, then fails.
func (c *Checker[S]) abortRound(ctx context.Context, code ErrorCode, msg string) error {
	if err := c.report(ctx, false, false, nil); err != nil {
		return err
	}
	return c.fail(code, msg, nil)
}

func (c *Checker[S]) report(ctx context.Context, checked, match bool, target any) error {
	if c.cfg.observer == nil {
		return nil
	}
	r := RoundReport{
		Round:        c.round,
		Command:      c.cmd.String(),
		Kind:         c.cmd.Kind(),
		Expected:     c.expected,
		Got:          c.got,
		RetvMatch:    c.retvOK,
		ExtraMatch:   c.extraOK,
		StateChecked: checked,
		StateMatch:   match,
		Model:        c.model,
		Target:       target,
	}
	if err := c.cfg.observer.ObserveRound(ctx, r); err != nil {
		return c.fail(CodeObserver, "observe round", err)
	}
	return nil
}

func (c *Checker[S]) fail(code ErrorCode, msg string, err error) error {
	return &CheckError{
		Code:    code,
		Round:   c.round,
		Phase:   c.phase,
		Message: msg,
		Err:     err,
	}
}

func (c *Checker[S]) print(s string) {
	c.cfg.printer.Print(s)
}

func dump(v any) string {
	return fmt.Sprintf("%v", v)
}

// IsDone reports whether err ends a session normally.
func IsDone(err error) bool {
	return err == nil || errors.Is(err, command.ErrExhausted)
}
