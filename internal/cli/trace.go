package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kmc/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Session    string
	Mismatches bool // only rounds that disagreed
}

// SessionView is the JSON shape of a recorded session.
type SessionView struct {
	ID       string `json:"id"`
	Scenario string `json:"scenario"`
	Seq      int64  `json:"seq"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Rounds   int    `json:"rounds"`
}

// RoundView is the JSON shape of a recorded round.
type RoundView struct {
	Round        int    `json:"round"`
	Command      string `json:"command"`
	Expected     int64  `json:"expected"`
	Got          int64  `json:"got"`
	RetvMatch    bool   `json:"retv_match"`
	ExtraMatch   bool   `json:"extra_match"`
	StateChecked bool   `json:"state_checked"`
	StateMatch   bool   `json:"state_match"`
	ModelDigest  string `json:"model_digest"`
	StateDigest  string `json:"state_digest,omitempty"`
}

// TraceResult holds one session and its rounds.
type TraceResult struct {
	Session SessionView `json:"session"`
	Rounds  []RoundView `json:"rounds"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded sessions",
		Long: `Inspect sessions recorded with "kmc run --db".

Without --session every recorded session is listed in start order.
With --session the rounds of that session are shown.

Examples:
  kmc trace --db ./kmc.db
  kmc trace --db ./kmc.db --session 0192...
  kmc trace --db ./kmc.db --session 0192... --mismatches --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to show")
	cmd.Flags().BoolVar(&opts.Mismatches, "mismatches", false, "only show rounds that disagreed")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		views := make([]SessionView, len(sessions))
		for i, s := range sessions {
			views[i] = sessionView(s)
		}
		if opts.Format == "json" {
			return formatter.JSON(CLIResponse{Status: "ok", Data: views})
		}
		printSessions(formatter.Writer, views)
		return nil
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		_ = formatter.Error("E_SESSION_NOT_FOUND", fmt.Sprintf("no session %s", opts.Session), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	read := st.ReadRounds
	if opts.Mismatches {
		read = st.ReadMismatches
	}
	rounds, err := read(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read rounds", err)
	}

	result := TraceResult{Session: sessionView(sess), Rounds: make([]RoundView, len(rounds))}
	for i, r := range rounds {
		result.Rounds[i] = roundView(r)
	}

	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result, SessionID: sess.ID})
	}
	printTrace(formatter.Writer, result, opts.Verbose)
	return nil
}

// openExistingStore opens path, refusing to create a fresh database.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func sessionView(s store.Session) SessionView {
	return SessionView{
		ID:       s.ID,
		Scenario: s.Scenario,
		Seq:      s.StartedSeq,
		Status:   string(s.Status),
		Error:    s.Error,
		Rounds:   s.Rounds,
	}
}

func roundView(r store.Round) RoundView {
	return RoundView{
		Round:        r.Round,
		Command:      r.Command,
		Expected:     r.Expected,
		Got:          r.Got,
		RetvMatch:    r.RetvMatch,
		ExtraMatch:   r.ExtraMatch,
		StateChecked: r.StateChecked,
		StateMatch:   r.StateMatch,
		ModelDigest:  r.ModelDigest,
		StateDigest:  r.StateDigest,
	}
}

func printSessions(w io.Writer, sessions []SessionView) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%4d  %-8s %-36s %s (%d rounds)\n", s.Seq, s.Status, s.ID, s.Scenario, s.Rounds)
		if s.Error != "" {
			fmt.Fprintf(w, "      %s\n", s.Error)
		}
	}
}

func printTrace(w io.Writer, t TraceResult, verbose bool) {
	fmt.Fprintf(w, "Session: %s\n", t.Session.ID)
	fmt.Fprintf(w, "Scenario: %s\n", t.Session.Scenario)
	fmt.Fprintf(w, "Status: %s\n", t.Session.Status)
	if t.Session.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", t.Session.Error)
	}
	fmt.Fprintln(w)

	if len(t.Rounds) == 0 {
		fmt.Fprintln(w, "No rounds.")
		return
	}
	for _, r := range t.Rounds {
		fmt.Fprintf(w, "  [%d] %s expected=%d got=%d %s\n", r.Round, r.Command, r.Expected, r.Got, verdict(r))
		if verbose {
			fmt.Fprintf(w, "       model: %s\n", truncateID(r.ModelDigest))
			if r.StateChecked {
				fmt.Fprintf(w, "       state: %s\n", truncateID(r.StateDigest))
			}
		}
	}
}

func verdict(r RoundView) string {
	switch {
	case !r.RetvMatch:
		return "retv mismatch"
	case !r.ExtraMatch:
		return "extra mismatch"
	case r.StateChecked && !r.StateMatch:
		return "state mismatch"
	default:
		return "ok"
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
