package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/shell"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingRunner struct {
	cmdlines []string
	exitCode int
	err      error
	output   string
}

func (r *recordingRunner) Run(_ context.Context, cmdline string, stdout, _ io.Writer) (int, error) {
	r.cmdlines = append(r.cmdlines, cmdline)
	if r.output != "" {
		io.WriteString(stdout, r.output)
	}
	return r.exitCode, r.err
}

func testInvocation() deployment.Invocation {
	return deployment.Invocation{
		ScriptType:   deployment.ScriptTypeAnsiblePlaybook,
		ScriptFolder: "/srv/plays/foo",
		Path:         "site.yml",
		Parameters:   map[string]any{deployment.ParamRemoteToolVersion: "2.9"},
		Arguments:    deployment.DefaultArguments,
	}
}

// =============================================================================
// Remote Tests
// =============================================================================

func TestRemoteExecute_BuildsCommand(t *testing.T) {
	runner := &recordingRunner{}
	remote := NewRemote(runner, setupTestLogger(), RemoteConfig{Playbook: "/opt/external.yml", Stdout: io.Discard, Stderr: io.Discard})
	env := &docker.Environment{ID: "abc", Name: "src-test-container"}

	result, err := remote.Execute(context.Background(), env, testInvocation())
	require.NoError(t, err)
	assert.Nil(t, result.Output)

	code, err := result.ExitCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	require.Len(t, runner.cmdlines, 1)
	fields, err := shell.Fields(runner.cmdlines[0], func(string) string { return "" })
	require.NoError(t, err)
	assert.Equal(t, []string{"ansible-playbook", "-b", "-u", "root", "-c", "docker", "-i", "src-test-container,"}, fields[:8])
	assert.Equal(t, "/opt/external.yml", fields[len(fields)-1])

	var payload map[string]deployment.Invocation
	require.NoError(t, json.Unmarshal([]byte(fields[len(fields)-2]), &payload))
	assert.Equal(t, "/srv/plays/foo", payload[deployment.RemotePluginKey].ScriptFolder)
	assert.Equal(t, "2.9", payload[deployment.RemotePluginKey].Parameters[deployment.ParamRemoteToolVersion])
}

func TestRemoteExecute_NonZeroExitIsNotAnError(t *testing.T) {
	runner := &recordingRunner{exitCode: 2}
	remote := NewRemote(runner, setupTestLogger(), RemoteConfig{Playbook: "/opt/external.yml", Stdout: io.Discard, Stderr: io.Discard})

	result, err := remote.Execute(context.Background(), &docker.Environment{Name: "ws"}, testInvocation())
	require.NoError(t, err)

	code, err := result.ExitCode(context.Background())
	assert.Equal(t, 2, code)
	assert.False(t, Succeeded(code, err))
}

func TestRemoteExecute_RunnerErrorIsExecutionError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("sh: not found")}
	remote := NewRemote(runner, setupTestLogger(), RemoteConfig{Stdout: io.Discard, Stderr: io.Discard})

	_, err := remote.Execute(context.Background(), &docker.Environment{Name: "ws"}, testInvocation())

	var execErr *deployment.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "site.yml", execErr.Component)
	assert.Equal(t, -1, execErr.ExitCode)
}

func TestRemoteExecute_OutputGoesToTerminal(t *testing.T) {
	runner := &recordingRunner{output: "PLAY RECAP\n"}
	var stdout bytes.Buffer
	remote := NewRemote(runner, setupTestLogger(), RemoteConfig{Stdout: &stdout, Stderr: io.Discard})

	_, err := remote.Execute(context.Background(), &docker.Environment{Name: "ws"}, testInvocation())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout.String(), "Running ansible-playbook "))
	assert.True(t, strings.HasSuffix(stdout.String(), "\nPLAY RECAP\n"))
}

// =============================================================================
// Strategies Tests
// =============================================================================

func TestStrategiesFor(t *testing.T) {
	remote := NewRemote(&recordingRunner{}, setupTestLogger(), RemoteConfig{})
	local := NewLocal(nil, nil, setupTestLogger(), LocalConfig{})
	strategies := Strategies{Remote: remote, Local: local}

	got, err := strategies.For(deployment.MethodRemote)
	require.NoError(t, err)
	assert.Equal(t, deployment.MethodRemote, got.Method())

	got, err = strategies.For(deployment.MethodLocal)
	require.NoError(t, err)
	assert.Equal(t, deployment.MethodLocal, got.Method())

	_, err = strategies.For(deployment.Method("ssh"))
	var unknown *deployment.UnknownMethodError
	assert.ErrorAs(t, err, &unknown)
}

func TestStrategiesFor_Unregistered(t *testing.T) {
	_, err := Strategies{}.For(deployment.MethodLocal)
	var unknown *deployment.UnknownMethodError
	assert.ErrorAs(t, err, &unknown)
}

func TestSucceeded(t *testing.T) {
	assert.True(t, Succeeded(0, nil))
	assert.False(t, Succeeded(1, nil))
	assert.False(t, Succeeded(0, errors.New("inspect failed")))
}

func TestResult_NoExitCode(t *testing.T) {
	r := &Result{}
	code, err := r.ExitCode(context.Background())
	assert.Equal(t, -1, code)
	assert.Error(t, err)
	assert.NoError(t, r.Close())
}
