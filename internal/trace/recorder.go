package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/kmc/internal/checker"
	"github.com/roach88/kmc/internal/ir"
	"github.com/roach88/kmc/internal/store"
)

// ErrNotStarted is returned when rounds are observed before Begin.
var ErrNotStarted = errors.New("recorder: session not started")

// Recorder persists a checker session. It implements checker.Observer.
type Recorder struct {
	store    *store.Store
	ids      IDGenerator
	scenario string
	logger   *slog.Logger

	sessionID string
	rounds    int
}

// NewRecorder creates a recorder for one session of the named scenario.
// A nil ids uses UUIDv7Generator.
func NewRecorder(st *store.Store, ids IDGenerator, scenario string) *Recorder {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &Recorder{
		store:    st,
		ids:      ids,
		scenario: scenario,
		logger:   slog.Default(),
	}
}

// SessionID returns the current session ID, empty before Begin.
func (r *Recorder) SessionID() string { return r.sessionID }

// Begin opens the session row.
func (r *Recorder) Begin(ctx context.Context) (string, error) {
	id := r.ids.Generate()
	sess, err := r.store.OpenSession(ctx, id, r.scenario)
	if err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}
	r.sessionID = sess.ID
	r.rounds = 0
	r.logger.Debug("session opened",
		"event", "session_open",
		"session_id", sess.ID,
		"scenario", r.scenario,
		"seq", sess.StartedSeq,
	)
	return sess.ID, nil
}

// ObserveRound writes one round with digests of the compared states.
func (r *Recorder) ObserveRound(ctx context.Context, rr checker.RoundReport) error {
	if r.sessionID == "" {
		return ErrNotStarted
	}

	row := store.Round{
		SessionID:    r.sessionID,
		Round:        rr.Round,
		Command:      rr.Command,
		Kind:         int(rr.Kind),
		Expected:     rr.Expected,
		Got:          rr.Got,
		RetvMatch:    rr.RetvMatch,
		ExtraMatch:   rr.ExtraMatch,
		StateChecked: rr.StateChecked,
		StateMatch:   rr.StateMatch,
	}

	var err error
	if rr.Model != nil {
		if row.ModelDigest, err = ir.StateDigest(rr.Model); err != nil {
			return fmt.Errorf("round %d: %w", rr.Round, err)
		}
	}
	if rr.StateChecked && rr.Target != nil {
		if row.StateDigest, err = ir.StateDigest(rr.Target); err != nil {
			return fmt.Errorf("round %d: %w", rr.Round, err)
		}
	}

	if err := r.store.WriteRound(ctx, row); err != nil {
		return err
	}
	r.rounds++
	return nil
}

// End closes the session. A nil or exhaustion error with no mismatches
// marks it passed; anything else marks it failed.
func (r *Recorder) End(ctx context.Context, stats checker.Stats, runErr error) error {
	if r.sessionID == "" {
		return ErrNotStarted
	}

	status := store.StatusPassed
	errText := ""
	if !checker.IsDone(runErr) {
		status = store.StatusFailed
		errText = runErr.Error()
	} else if stats.Mismatches() > 0 {
		status = store.StatusFailed
		errText = fmt.Sprintf("%d mismatches", stats.Mismatches())
	}

	if err := r.store.CloseSession(ctx, r.sessionID, status, errText, r.rounds); err != nil {
		return err
	}
	r.logger.Debug("session closed",
		"event", "session_close",
		"session_id", r.sessionID,
		"status", string(status),
		"rounds", r.rounds,
	)
	return nil
}
