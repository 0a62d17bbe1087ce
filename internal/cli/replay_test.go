package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kmc/internal/ir"
	"github.com/roach88/kmc/internal/kernel"
	"github.com/roach88/kmc/internal/store"
)

type replayResponse struct {
	Status    string       `json:"status"`
	Data      ReplayResult `json:"data"`
	Error     *CLIError    `json:"error"`
	SessionID string       `json:"session_id"`
}

func TestReplay_MissingFlags(t *testing.T) {
	_, err := execute(t, "replay", "--db", "x.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplay_RecordedRun(t *testing.T) {
	dir := t.TempDir()
	scenario := writeScenario(t, dir, "mixed.yaml", `name: mixed
description: "mappings, files and a failing exit"
commands:
  - spawn
  - mmap 0x1000 0x2000 rw
  - munmap 0x1800 0x100
  - write /tmp/a 12
  - stat /tmp/a
  - exit
  - exit
`)
	dbPath := filepath.Join(dir, "kmc.db")

	out, err := execute(t, "run", scenario, "--db", dbPath, "--format", "json")
	require.NoError(t, err)
	var run runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.NotEmpty(t, run.SessionID)

	out, err = execute(t, "replay", "--db", dbPath, "--session", run.SessionID, "--format", "json")
	require.NoError(t, err)

	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, run.SessionID, resp.SessionID)
	assert.True(t, resp.Data.Deterministic)
	assert.Equal(t, 7, resp.Data.Rounds)
	assert.Empty(t, resp.Data.Divergences)
}

func TestReplay_Divergence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kmc.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.OpenSession(ctx, "session-1", "tampered")
	require.NoError(t, err)

	model := kernel.NewState(0)
	_, err = kernel.Spawn{}.Execute(model)
	require.NoError(t, err)
	require.NoError(t, st.WriteRound(ctx, store.Round{
		SessionID: "session-1", Round: 0, Command: "spawn",
		ModelDigest: ir.MustStateDigest(model),
	}))
	require.NoError(t, st.WriteRound(ctx, store.Round{
		SessionID: "session-1", Round: 1, Command: "sched",
		Expected: 7, ModelDigest: "bogus",
	}))
	require.NoError(t, st.CloseSession(ctx, "session-1", store.StatusPassed, "", 2))
	require.NoError(t, st.Close())

	out, err := execute(t, "replay", "--db", dbPath, "--session", "session-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Rounds replayed: 2")
	assert.Contains(t, out, "✗ Replay diverged in 2 place(s)")
	assert.Contains(t, out, "[1] sched expected: recorded 0x7, replayed 0x0")
	assert.Contains(t, out, "[1] sched model: recorded bogus")
}

func TestReplay_ModelIDBase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kmc.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.OpenSession(ctx, "session-1", "based")
	require.NoError(t, err)

	model := kernel.NewState(1000)
	_, err = kernel.Spawn{}.Execute(model)
	require.NoError(t, err)
	require.NoError(t, st.WriteRound(ctx, store.Round{
		SessionID: "session-1", Round: 0, Command: "spawn",
		ModelDigest: ir.MustStateDigest(model),
	}))
	require.NoError(t, st.Close())

	_, err = execute(t, "replay", "--db", dbPath, "--session", "session-1")
	require.Error(t, err, "task ids differ from a zero base")

	_, err = execute(t, "replay", "--db", dbPath, "--session", "session-1", "--model-id-base", "1000")
	require.NoError(t, err)
}

func TestReplay_UnknownSession(t *testing.T) {
	dbPath := seedStore(t)

	_, err := execute(t, "replay", "--db", dbPath, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplay_UnparsableCommand(t *testing.T) {
	session := store.Session{ID: "s", Scenario: "bad"}
	rounds := []store.Round{{SessionID: "s", Round: 0, Command: "frobnicate"}}

	_, err := replaySession(session, rounds, kernel.NewState(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "round 0")
}
