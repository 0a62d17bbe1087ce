package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/kmc/internal/checker"
	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/kernel"
	"github.com/roach88/kmc/internal/mem"
	"github.com/roach88/kmc/internal/port"
	"github.com/roach88/kmc/internal/store"
	"github.com/roach88/kmc/internal/trace"
)

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	store     *store.Store
	ids       trace.IDGenerator
	printer   checker.Printer
	logger    *slog.Logger
	retv      *checker.Severity
	state     *checker.Severity
	maxRounds *int
}

// WithStore records the session into st.
func WithStore(st *store.Store) Option {
	return func(c *runConfig) {
		c.store = st
	}
}

// WithIDGenerator sets the session ID source for recorded sessions.
func WithIDGenerator(ids trace.IDGenerator) Option {
	return func(c *runConfig) {
		c.ids = ids
	}
}

// WithPrinter mirrors the human-readable trace to p as it is produced.
// Result.Output is captured regardless.
func WithPrinter(p checker.Printer) Option {
	return func(c *runConfig) {
		c.printer = p
	}
}

// WithLogger sets the logger handed to the checker. Defaults to a discard
// logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithRetvSeverity overrides the scenario's result-code severity.
func WithRetvSeverity(s checker.Severity) Option {
	return func(c *runConfig) {
		c.retv = &s
	}
}

// WithStateSeverity overrides the scenario's state severity.
func WithStateSeverity(s checker.Severity) Option {
	return func(c *runConfig) {
		c.state = &s
	}
}

// WithMaxRounds overrides the scenario's round bound.
func WithMaxRounds(n int) Option {
	return func(c *runConfig) {
		c.maxRounds = &n
	}
}

// session is everything needed to drive one scenario.
type session struct {
	commander command.Commander[*kernel.State]
	port      port.Port[*kernel.State]
	model     *kernel.State
}

// Run executes a scenario and returns the result.
//
// The returned error covers setup problems (bad severities, a store that
// cannot be written). Checker failures are part of the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	retv, err := scenario.retvSeverity()
	if err != nil {
		return nil, fmt.Errorf("retv: %w", err)
	}
	if cfg.retv != nil {
		retv = *cfg.retv
	}
	stateSev, err := scenario.stateSeverity()
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	if cfg.state != nil {
		stateSev = *cfg.state
	}
	maxRounds := scenario.MaxRounds
	if cfg.maxRounds != nil {
		maxRounds = *cfg.maxRounds
	}

	sess := newSession(scenario)
	result := NewResult()

	var out bytes.Buffer
	var printer checker.Printer = trace.NewWriterPrinter(&out)
	if cfg.printer != nil {
		printer = trace.Tee{printer, cfg.printer}
	}

	collector := &collector{result: result}
	observers := multiObserver{collector}

	var rec *trace.Recorder
	if cfg.store != nil {
		rec = trace.NewRecorder(cfg.store, cfg.ids, scenario.Name)
		id, err := rec.Begin(ctx)
		if err != nil {
			return nil, err
		}
		result.SessionID = id
		observers = append(observers, rec)
	}

	c := checker.New[*kernel.State](sess.commander, sess.port, sess.model,
		checker.WithRetvSeverity(retv),
		checker.WithStateSeverity(stateSev),
		checker.WithPrinter(printer),
		checker.WithObserver(observers),
		checker.WithLogger(cfg.logger),
	)

	runErr := c.Run(ctx, maxRounds)
	if checker.IsDone(runErr) {
		runErr = nil
	}

	result.Stats = c.Stats()
	result.Output = out.String()
	result.Final = c.Model()
	result.Err = runErr
	result.Clean = runErr == nil && result.Stats.Mismatches() == 0
	var ce *checker.CheckError
	if errors.As(runErr, &ce) {
		result.ErrorCode = string(ce.Code)
	}

	if rec != nil {
		// The store outlives a canceled run; record the end regardless.
		if err := rec.End(context.WithoutCancel(ctx), result.Stats, runErr); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	if !hasOutcomeAssertion(scenario.Assertions) && !result.Clean {
		if runErr != nil {
			result.AddError(runErr.Error())
		} else {
			result.AddError(fmt.Sprintf("%d mismatches", result.Stats.Mismatches()))
		}
	}

	return result, nil
}

func newSession(s *Scenario) session {
	var commander command.Commander[*kernel.State]
	if s.Random != nil {
		commander = command.NewRandom(s.Random.Seed, s.Random.Count, kernel.Generators()...)
	} else {
		commander = command.NewScript(kernel.Commands(), s.Commands)
	}
	if s.FailFast {
		commander = command.FailFast(commander)
	}

	var p port.Port[*kernel.State]
	var target func() *kernel.State
	switch s.Transport {
	case TransportMem:
		layout := port.DefaultLayout()
		if s.ChunkSize > 0 {
			layout.ChunkSize = s.ChunkSize
		}
		memory := mem.NewMemory()
		agent := port.NewMemAgent(memory, layout, kernel.NewState(s.targetIDBase()),
			kernel.DecodeCommand, port.JSONEncoder[*kernel.State]())
		p = port.NewMemPort(memory, port.JSONDecoder(kernel.Empty),
			port.WithLayout(layout), port.WithDoorbell(agent.Service))
		target = agent.State
	default:
		mirror := port.NewShared(kernel.NewState(s.targetIDBase()))
		p = port.NewLoopback(mirror, kernel.Empty, port.WithChunks(s.Chunks)).
			SetCodec(port.JSONEncoder[*kernel.State](), port.JSONDecoder(kernel.Empty))
		target = mirror.Get
	}
	if len(s.Faults) > 0 {
		p = newFaultPort(p, target, s.Faults)
	}

	return session{
		commander: commander,
		port:      p,
		model:     kernel.NewState(s.ModelIDBase),
	}
}

// collector turns round reports into trace events.
type collector struct {
	result *Result
}

func (c *collector) ObserveRound(_ context.Context, r checker.RoundReport) error {
	c.result.Trace = append(c.result.Trace, TraceEvent{
		Round:        r.Round,
		Command:      r.Command,
		Expected:     r.Expected,
		Got:          r.Got,
		RetvMatch:    r.RetvMatch,
		ExtraMatch:   r.ExtraMatch,
		StateChecked: r.StateChecked,
		StateMatch:   r.StateMatch,
	})
	return nil
}

// multiObserver fans a report out in order and stops at the first error.
type multiObserver []checker.Observer

func (m multiObserver) ObserveRound(ctx context.Context, r checker.RoundReport) error {
	for _, o := range m {
		if err := o.ObserveRound(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
