package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/kmc/internal/command"
	"github.com/roach88/kmc/internal/ir"
	"github.com/roach88/kmc/internal/kernel"
	"github.com/roach88/kmc/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database    string
	Session     string
	ModelIDBase uint64
}

// ReplayDivergence is one round whose replayed model disagrees with the
// recording.
type ReplayDivergence struct {
	Round    int    `json:"round"`
	Command  string `json:"command"`
	Field    string `json:"field"` // "expected" or "model"
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

// ReplayResult holds the replay outcome for one session.
type ReplayResult struct {
	SessionID     string             `json:"session_id"`
	Scenario      string             `json:"scenario"`
	Rounds        int                `json:"rounds"`
	Deterministic bool               `json:"deterministic"`
	Divergences   []ReplayDivergence `json:"divergences"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-execute a recorded session on a fresh model",
		Long: `Re-execute every recorded command of a session on a fresh model and
verify that each round yields the recorded expected result code and model
digest.

Exit codes:
  0 - Replay reproduced the recording
  1 - Replay diverged from the recording
  2 - Command error (database not found, unknown session, etc.)

Examples:
  kmc replay --db ./kmc.db --session 0192...
  kmc replay --db ./kmc.db --session 0192... --model-id-base 1000 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to replay (required)")
	_ = cmd.MarkFlagRequired("session")
	cmd.Flags().Uint64Var(&opts.ModelIDBase, "model-id-base", 0, "first task ID of the replayed model")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	logger := configureLogging(cmd.ErrOrStderr(), opts.Verbose)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	rounds, err := st.ReadRounds(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read rounds", err)
	}

	result, err := replaySession(sess, rounds, kernel.NewState(opts.ModelIDBase))
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	logger.Debug("session replayed",
		"event", "session_replay",
		"session_id", sess.ID,
		"rounds", result.Rounds,
		"divergences", len(result.Divergences),
	)

	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result, SessionID: sess.ID}
		if !result.Deterministic {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_REPLAY_DIVERGED",
				Message: fmt.Sprintf("%d round(s) diverged", len(result.Divergences)),
			}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		printReplay(formatter.Writer, result)
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, fmt.Sprintf("replay of %s diverged", sess.ID))
	}
	return nil
}

// replaySession executes each recorded command on model in round order.
// Rounds must be sorted by round number.
func replaySession(sess store.Session, rounds []store.Round, model *kernel.State) (ReplayResult, error) {
	registry := kernel.Commands()
	result := ReplayResult{
		SessionID:     sess.ID,
		Scenario:      sess.Scenario,
		Deterministic: true,
		Divergences:   []ReplayDivergence{},
	}

	for _, r := range rounds {
		cmd, err := registry.Parse(r.Command)
		if err != nil {
			return result, fmt.Errorf("round %d: %w", r.Round, err)
		}
		expected, err := cmd.Execute(model)
		if err != nil {
			code, ok := command.FailureCode(err)
			if !ok {
				return result, fmt.Errorf("round %d: execute %s: %w", r.Round, cmd, err)
			}
			expected = code
		}
		digest, err := ir.StateDigest(model)
		if err != nil {
			return result, fmt.Errorf("round %d: %w", r.Round, err)
		}
		result.Rounds++

		if expected != r.Expected {
			result.Divergences = append(result.Divergences, ReplayDivergence{
				Round:    r.Round,
				Command:  r.Command,
				Field:    "expected",
				Recorded: fmt.Sprintf("%#x", r.Expected),
				Replayed: fmt.Sprintf("%#x", expected),
			})
		}
		if digest != r.ModelDigest {
			result.Divergences = append(result.Divergences, ReplayDivergence{
				Round:    r.Round,
				Command:  r.Command,
				Field:    "model",
				Recorded: r.ModelDigest,
				Replayed: digest,
			})
		}
	}

	result.Deterministic = len(result.Divergences) == 0
	return result, nil
}

func printReplay(w io.Writer, r ReplayResult) {
	fmt.Fprintf(w, "Session: %s\n", r.SessionID)
	fmt.Fprintf(w, "Scenario: %s\n", r.Scenario)
	fmt.Fprintf(w, "Rounds replayed: %d\n", r.Rounds)
	if r.Deterministic {
		fmt.Fprintln(w, "✓ Replay matches recording")
		return
	}
	fmt.Fprintf(w, "✗ Replay diverged in %d place(s)\n", len(r.Divergences))
	for _, d := range r.Divergences {
		fmt.Fprintf(w, "  [%d] %s %s: recorded %s, replayed %s\n",
			d.Round, d.Command, d.Field, truncateID(d.Recorded), truncateID(d.Replayed))
	}
}
