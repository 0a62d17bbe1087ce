// Package store provides SQLite-backed persistence for checker session
// traces.
//
// The store is append-only:
//   - Sessions: one row per checker session, with its final status
//   - Rounds: one row per decided round, keyed by (session_id, round)
//
// # Ordering
//
// Sessions are ordered by started_seq, a logical counter allocated by the
// store, never by wall-clock time. Rounds are ordered by round number.
// Every query that returns several rows has an explicit ORDER BY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
