package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/harness"
)

const passingScenario = `name: insert-player
description: Insert one player
schema:
  - CREATE TABLE player (id INTEGER PRIMARY KEY, name TEXT NOT NULL, score INTEGER NOT NULL DEFAULT 0)
steps:
  - op: insert
    table: player
    values: { id: null, name: Arthur, score: 100 }
    expect: { rowid: 1 }
assertions:
  - type: table_rows
    table: player
    count: 1
`

const failingScenario = `name: missing-player
description: Update a player that does not exist
schema:
  - CREATE TABLE player (id INTEGER PRIMARY KEY, name TEXT NOT NULL)
steps:
  - op: update
    table: player
    values: { id: 9, name: Nobody }
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestRunCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRunCommandNonExistentPath(t *testing.T) {
	_, err := execute(t, "run", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandEmptyDir(t *testing.T) {
	out, err := execute(t, "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = execute(t, "--format", "json", "run", t.TempDir())
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRunCommandPassing(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			dir := writeScenarios(t, map[string]string{"insert.yaml": passingScenario})

			out, err := execute(t, "--driver", driver, "run", dir)
			require.NoError(t, err)
			assert.Contains(t, out, "✓ insert-player")
			assert.Contains(t, out, "Run Summary: 1 passed, 0 failed, 1 total")
		})
	}
}

func TestRunCommandFailing(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"insert.yaml":  passingScenario,
		"missing.yaml": failingScenario,
		"broken.yml":   "name: [",
		"notes.txt":    "ignored",
	})

	out, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ missing-player")
	assert.Contains(t, out, "unexpected error")
	assert.Contains(t, out, "✗ broken.yml")
	assert.Contains(t, out, "load error")
	assert.Contains(t, out, "Run Summary: 1 passed, 2 failed, 3 total")
}

func TestRunCommandFilter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"insert.yaml":  passingScenario,
		"missing.yaml": failingScenario,
	})

	out, err := execute(t, "run", dir, "--filter", "ins*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")

	_, err = execute(t, "run", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandSingleFileWithTrace(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"insert.yaml": passingScenario})

	out, err := execute(t, "run", filepath.Join(dir, "insert.yaml"), "--trace")
	require.NoError(t, err)
	assert.Contains(t, out, `[0] INSERT INTO "player" ("name", "score") VALUES ('Arthur',100)`)
}

func TestRunCommandGolden(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"insert.yaml": passingScenario})
	goldenPath := filepath.Join(dir, "golden", "insert.golden")

	out, err := execute(t, "run", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ insert-player (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `{"scenario":"insert-player"}`)

	out, err = execute(t, "run", dir)
	require.NoError(t, err, out)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0o644))
	out, err = execute(t, "run", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestRunCommandJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"insert.yaml":  passingScenario,
		"missing.yaml": failingScenario,
	})

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json", Driver: "sqlite3"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	for _, s := range resp.Data.Scenarios {
		assert.NotEmpty(t, s.RunID)
	}
}

func TestRunCommandIDGenerator(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"insert.yaml": passingScenario})

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json", Driver: "sqlite3"},
		IDGenerator: harness.NewFixedGenerator("run-1"),
	}
	cmd := NewRunCommand(opts.RootOptions)
	cmd.SetContext(context.Background())
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	sr := runScenario(opts, filepath.Join(dir, "insert.yaml"), cmd)
	assert.True(t, sr.Pass, "errors: %v", sr.Errors)
	assert.Equal(t, "run-1", sr.RunID)
	assert.Empty(t, buf.String(), "json mode prints nothing per scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "upsert.golden"), goldenFilePath(filepath.Join("scenarios", "upsert.cue")))
}
