package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeWorkspace(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "components.yml")
	require.NoError(t, os.WriteFile(path, []byte("default_script_dir: /srv/plays\ncomponents:\n  - path: site.yml\n"), 0644))
	return path
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "stagehand dev (built unknown)\n", stdout)
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "deploy")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestRun_MissingWorkspace(t *testing.T) {
	clearEnv(t)

	code, _, stderr := runCLI(t, "run", "--log-level", "error")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "configuration: workspace")
}

// Initialization failures end the run before any container is created, so
// these need no daemon.
func TestRun_UnknownMethodIsRecorded(t *testing.T) {
	clearEnv(t)
	dsn := filepath.Join(t.TempDir(), "runs.db")

	code, _, stderr := runCLI(t, "run", "-w", writeWorkspace(t), "-m", "ssh", "--history", dsn, "--log-level", "error")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, `unknown execution method "ssh"`)
	assert.NotContains(t, stderr, "Error: run:", "diagnostics are not repeated")

	code, stdout, _ := runCLI(t, "history", "--history", dsn)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "RUN")
	assert.Contains(t, stdout, "failed")
	assert.Contains(t, stdout, "ssh")
}

func TestRun_InvalidSettingsFile(t *testing.T) {
	clearEnv(t)
	settings := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("timeout: -5s\n"), 0644))

	code, _, stderr := runCLI(t, "run", "-w", writeWorkspace(t), "--settings", settings)

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "timeout: must not be negative")
}

func TestHistory_NotConfigured(t *testing.T) {
	clearEnv(t)

	code, _, stderr := runCLI(t, "history")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "run history is not configured")
}

func TestHistory_ShowRun(t *testing.T) {
	clearEnv(t)
	dsn := filepath.Join(t.TempDir(), "runs.db")
	seedHistory(t, dsn)

	code, stdout, _ := runCLI(t, "history", "--history", dsn, "run-1")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Run:        run-1")
	assert.Contains(t, stdout, "State:      aborted")
	assert.Contains(t, stdout, "Error:      component b.yml failed with exit code 2")
	assert.Contains(t, stdout, "a.yml")
	assert.Contains(t, stdout, "b.yml")
	assert.Contains(t, stdout, "failed")
}

func TestHistory_ListEmpty(t *testing.T) {
	clearEnv(t)
	dsn := filepath.Join(t.TempDir(), "runs.db")

	code, stdout, _ := runCLI(t, "history", "--history", dsn)

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "No runs recorded.\n", stdout)
}

func TestHistory_UnknownRun(t *testing.T) {
	clearEnv(t)
	dsn := filepath.Join(t.TempDir(), "runs.db")

	code, _, stderr := runCLI(t, "history", "--history", dsn, "missing")

	assert.Equal(t, ExitHistoryError, code)
	assert.Contains(t, stderr, "run not found")
}

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCodeOf(nil))
	assert.Equal(t, ExitConfigError, exitCodeOf(errors.New("flag needs an argument")))
	assert.Equal(t, ExitDockerError, exitCodeOf(&AppError{Op: "NewApp", Err: errors.New("x"), ExitCode: ExitDockerError}))
}

func seedHistory(t *testing.T, dsn string) {
	t.Helper()
	history, err := store.NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer history.Close()

	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &deployment.RunRecord{
		ID:        "run-1",
		Workspace: "/srv/components.yml",
		Method:    deployment.MethodLocal,
		Image:     "src-basic-workspace",
		Container: "src-test-container",
		State:     deployment.StateInitializing,
		StartedAt: started,
	}
	require.NoError(t, history.CreateRun(ctx, run))

	for i, path := range []string{"a.yml", "b.yml"} {
		require.NoError(t, history.CreateComponentResult(ctx, &deployment.ComponentRecord{
			RunID:        run.ID,
			Position:     i,
			Path:         path,
			ScriptFolder: "/srv/plays",
			ExitCode:     i * 2,
			Succeeded:    i == 0,
			StartedAt:    started,
			FinishedAt:   started.Add(time.Second),
		}))
	}

	run.Dispatched = 2
	run.Finish(deployment.StateAborted, 3, &deployment.ExecutionError{Component: "b.yml", ExitCode: 2}, started.Add(2*time.Second))
	require.NoError(t, history.UpdateRun(ctx, run))
}
