package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/kmc/internal/checker"
	"github.com/roach88/kmc/internal/harness"
	"github.com/roach88/kmc/internal/store"
	"github.com/roach88/kmc/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	Retv      string
	State     string
	MaxRounds int
	Color     bool

	// IDGenerator allows overriding the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator trace.IDGenerator
}

// RunSummary is the JSON payload of a run.
type RunSummary struct {
	Scenario  string        `json:"scenario"`
	Pass      bool          `json:"pass"`
	Clean     bool          `json:"clean"`
	SessionID string        `json:"session_id,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Stats     checker.Stats `json:"stats"`
	Errors    []string      `json:"errors"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one checker session",
		Long: `Run the checker session described by a scenario file.

The human-readable trace is printed as rounds are decided. With --db the
session and every round are recorded to a SQLite database.

Exit codes:
  0 - Scenario passed
  1 - Scenario failed (mismatch, unexpected outcome) or is invalid
  2 - Command error (unreadable file, database error, etc.)

Examples:
  kmc run ./scenarios/spawn.yaml
  kmc run ./scenarios/spawn.yaml --db ./kmc.db --retv relaxed
  kmc run ./scenarios/random.yaml --max-rounds 500 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the session to this SQLite database")
	cmd.Flags().StringVar(&opts.Retv, "retv", "", "override result-code severity (none|relaxed|strict)")
	cmd.Flags().StringVar(&opts.State, "state", "", "override state severity (none|relaxed|strict)")
	cmd.Flags().IntVar(&opts.MaxRounds, "max-rounds", 0, "stop after this many rounds (0 = scenario default)")
	cmd.Flags().BoolVar(&opts.Color, "color", false, "colorize the trace")

	return cmd
}

func runSession(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := configureLogging(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "cannot read scenario", err)
	}
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid scenario", err)
	}

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Retv != "" {
		sev, err := checker.ParseSeverity(opts.Retv)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --retv", err)
		}
		runOpts = append(runOpts, harness.WithRetvSeverity(sev))
	}
	if opts.State != "" {
		sev, err := checker.ParseSeverity(opts.State)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --state", err)
		}
		runOpts = append(runOpts, harness.WithStateSeverity(sev))
	}
	if opts.MaxRounds > 0 {
		runOpts = append(runOpts, harness.WithMaxRounds(opts.MaxRounds))
	}
	if opts.Format != "json" {
		runOpts = append(runOpts, harness.WithPrinter(
			trace.NewWriterPrinter(cmd.OutOrStdout(), trace.WithColor(opts.Color))))
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		ids := opts.IDGenerator
		if ids == nil {
			ids = trace.UUIDv7Generator{}
		}
		runOpts = append(runOpts, harness.WithStore(st), harness.WithIDGenerator(ids))
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	slog.Info("session starting", "event", "session_start", "scenario", scenario.Name)
	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "session setup failed", err)
	}
	slog.Info("session finished",
		"event", "session_end",
		"scenario", scenario.Name,
		"rounds", result.Stats.Rounds,
		"mismatches", result.Stats.Mismatches(),
		"pass", result.Pass,
	)

	summary := RunSummary{
		Scenario:  scenario.Name,
		Pass:      result.Pass,
		Clean:     result.Clean,
		SessionID: result.SessionID,
		ErrorCode: result.ErrorCode,
		Stats:     result.Stats,
		Errors:    result.Errors,
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: summary, SessionID: result.SessionID}
		if !result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    errorCode(result),
				Message: fmt.Sprintf("scenario %s failed", scenario.Name),
				Details: result.Errors,
			}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		printSummary(formatter, summary)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func errorCode(r *harness.Result) string {
	if r.ErrorCode != "" {
		return r.ErrorCode
	}
	return "E_SCENARIO_FAILED"
}

func printSummary(f *OutputFormatter, s RunSummary) {
	w := f.Writer
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rounds: %d, mismatches: %d (retv %d, extra %d, state %d), exchanges: %d\n",
		s.Stats.Rounds, s.Stats.Mismatches(),
		s.Stats.RetvMismatches, s.Stats.ExtraMismatches, s.Stats.StateMismatches,
		s.Stats.Exchanges)
	if s.SessionID != "" {
		fmt.Fprintf(w, "Session: %s\n", s.SessionID)
	}
	if s.Pass {
		fmt.Fprintf(w, "✓ %s\n", s.Scenario)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", s.Scenario)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// signalContext derives a context from the command's that is canceled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
