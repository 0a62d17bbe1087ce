package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SessionStatus is the lifecycle state of a recorded session.
type SessionStatus string

const (
	StatusRunning SessionStatus = "running"
	StatusPassed  SessionStatus = "passed"
	StatusFailed  SessionStatus = "failed"
)

// Session is one checker run.
type Session struct {
	ID         string
	Scenario   string
	StartedSeq int64
	Status     SessionStatus
	Error      string
	Rounds     int
}

// Round is the decided outcome of one checker round.
type Round struct {
	SessionID    string
	Round        int
	Command      string
	Kind         int
	Expected     int64
	Got          int64
	RetvMatch    bool
	ExtraMatch   bool
	StateChecked bool
	StateMatch   bool
	ModelDigest  string
	StateDigest  string
}

// NextSeq allocates the next logical sequence number for a session start.
// Sequence numbers are monotonic within one database.
func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(started_seq), 0) + 1 FROM sessions").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// OpenSession inserts a running session with a freshly allocated sequence.
// Re-opening an existing ID is a no-op; the stored session is returned.
func (s *Store) OpenSession(ctx context.Context, id, scenario string) (Session, error) {
	seq, err := s.NextSeq(ctx)
	if err != nil {
		return Session{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, scenario, started_seq, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, scenario, seq, string(StatusRunning))
	if err != nil {
		return Session{}, fmt.Errorf("insert session %s: %w", id, err)
	}
	return s.ReadSession(ctx, id)
}

// WriteRound appends a round. Writing the same (session, round) twice is
// a no-op.
func (s *Store) WriteRound(ctx context.Context, r Round) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds (
			session_id, round, command, kind, expected, got,
			retv_match, extra_match, state_checked, state_match,
			model_digest, state_digest
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, round) DO NOTHING
	`, r.SessionID, r.Round, r.Command, r.Kind, r.Expected, r.Got,
		r.RetvMatch, r.ExtraMatch, r.StateChecked, r.StateMatch,
		r.ModelDigest, r.StateDigest)
	if err != nil {
		return fmt.Errorf("insert round %s/%d: %w", r.SessionID, r.Round, err)
	}
	return nil
}

// CloseSession records the final status, error text and round count.
func (s *Store) CloseSession(ctx context.Context, id string, status SessionStatus, errText string, rounds int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, error = ?, rounds = ?
		WHERE id = ?
	`, string(status), errText, rounds, id)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("close session %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// ReadSession returns sql.ErrNoRows (wrapped) when the session is unknown.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, started_seq, status, error, rounds
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Scenario, &sess.StartedSeq, &status, &sess.Error, &sess.Rounds)
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	sess.Status = SessionStatus(status)
	return sess, nil
}

// ListSessions returns all sessions in start order.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, started_seq, status, error, rounds
		FROM sessions
		ORDER BY started_seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var status string
		if err := rows.Scan(&sess.ID, &sess.Scenario, &sess.StartedSeq, &status, &sess.Error, &sess.Rounds); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Status = SessionStatus(status)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadRounds returns the session's rounds in round order. An unknown
// session yields an empty slice.
func (s *Store) ReadRounds(ctx context.Context, sessionID string) ([]Round, error) {
	return s.queryRounds(ctx, `
		SELECT session_id, round, command, kind, expected, got,
		       retv_match, extra_match, state_checked, state_match,
		       model_digest, state_digest
		FROM rounds
		WHERE session_id = ?
		ORDER BY round ASC
	`, sessionID)
}

// ReadMismatches returns only rounds where something disagreed.
func (s *Store) ReadMismatches(ctx context.Context, sessionID string) ([]Round, error) {
	return s.queryRounds(ctx, `
		SELECT session_id, round, command, kind, expected, got,
		       retv_match, extra_match, state_checked, state_match,
		       model_digest, state_digest
		FROM rounds
		WHERE session_id = ?
		  AND (retv_match = 0 OR extra_match = 0 OR (state_checked = 1 AND state_match = 0))
		ORDER BY round ASC
	`, sessionID)
}

func (s *Store) queryRounds(ctx context.Context, query string, args ...any) ([]Round, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	rounds := []Round{}
	for rows.Next() {
		var r Round
		if err := rows.Scan(&r.SessionID, &r.Round, &r.Command, &r.Kind, &r.Expected, &r.Got,
			&r.RetvMatch, &r.ExtraMatch, &r.StateChecked, &r.StateMatch,
			&r.ModelDigest, &r.StateDigest); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return rounds, nil
}
