package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runResponse struct {
	Status    string     `json:"status"`
	Data      RunSummary `json:"data"`
	Error     *CLIError  `json:"error"`
	SessionID string     `json:"session_id"`
}

func TestRun_PassingScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "passing.yaml", passingScenario)

	out, err := execute(t, "run", path)
	require.NoError(t, err)

	assert.Contains(t, out, "[ Round 0 ]")
	assert.Contains(t, out, "Command: spawn")
	assert.Contains(t, out, "Rounds: 3, mismatches: 0")
	assert.Contains(t, out, "✓ passing")
	assert.NotContains(t, out, "Session:")
}

func TestRun_DivergingScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "diverging.yaml", divergingScenario)

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "State mismatch")
	assert.Contains(t, out, "✗ diverging")
	assert.Contains(t, out, "STATE_MISMATCH")
}

func TestRun_RelaxedOverrideKeepsGoing(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "diverging.yaml", divergingScenario)

	out, err := execute(t, "run", path, "--state", "relaxed", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 3, resp.Data.Stats.Rounds)
	assert.Positive(t, resp.Data.Stats.StateMismatches)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)
}

func TestRun_MaxRounds(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "passing.yaml", passingScenario)

	out, err := execute(t, "run", path, "--max-rounds", "2", "--format", "json")
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, 2, resp.Data.Stats.Rounds)
}

func TestRun_RecordsSession(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "passing.yaml", passingScenario)
	dbPath := filepath.Join(dir, "kmc.db")

	out, err := execute(t, "run", path, "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.SessionID, resp.Data.SessionID)

	out, err = execute(t, "trace", "--db", dbPath, "--session", resp.SessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: passed")
	assert.Contains(t, out, "[2] exit")
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	valid := writeScenario(t, dir, "passing.yaml", passingScenario)
	invalid := writeScenario(t, dir, "bad.yaml", "name: bad\ndescription: x\ncommands: [frobnicate]\n")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing file", []string{"run", filepath.Join(dir, "nope.yaml")}, ExitCommandError},
		{"invalid scenario", []string{"run", invalid}, ExitFailure},
		{"bad severity", []string{"run", valid, "--retv", "loose"}, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}
