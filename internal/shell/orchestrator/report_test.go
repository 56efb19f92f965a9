package orchestrator

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/stretchr/testify/assert"
)

func TestReportExitCode(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   int
	}{
		{"completed", Report{State: deployment.StateCompleted}, ExitSuccess},
		{"teardown failed", Report{State: deployment.StateCompleted, TeardownErr: errors.New("x")}, ExitTeardownError},
		{"configuration", Report{State: deployment.StateFailed, Err: deployment.NewConfigurationError("components", "key is required", deployment.ErrMissingKey)}, ExitConfigError},
		{"unknown method", Report{State: deployment.StateFailed, Err: &deployment.UnknownMethodError{Method: "ssh"}}, ExitConfigError},
		{"provisioning", Report{State: deployment.StateFailed, Err: &deployment.ProvisioningError{Name: "ws", Err: errors.New("x")}}, ExitDockerError},
		{"component", Report{State: deployment.StateAborted, Err: &deployment.ExecutionError{Component: "a.yml", ExitCode: 2}}, ExitComponentFailed},
		{"wrapped provisioning", Report{State: deployment.StateFailed, Err: fmt.Errorf("run: %w", &deployment.ProvisioningError{Err: errors.New("x")})}, ExitDockerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.ExitCode())
		})
	}
}

func TestTailBuffer(t *testing.T) {
	tail := newTailBuffer(8)

	tail.Write([]byte("abc"))
	assert.Equal(t, "abc", tail.String())

	tail.Write([]byte("defgh"))
	assert.Equal(t, "abcdefgh", tail.String())

	tail.Write([]byte("ij"))
	assert.Equal(t, "...\ncdefghij", tail.String())

	tail.Write([]byte("0123456789"))
	assert.Equal(t, "...\n23456789", tail.String())
}

func TestTailBuffer_ExactFit(t *testing.T) {
	tail := newTailBuffer(4)
	tail.Write([]byte("abcd"))
	assert.Equal(t, "abcd", tail.String())
}

func TestWriteDiagnostics(t *testing.T) {
	staging := &deployment.StagingError{Source: "/srv/foo", Dest: "/rsc/plugins", Message: "transfer rejected", Err: errors.New("no space left")}
	report := &Report{
		RunID: "run-1",
		State: deployment.StateAborted,
		Err:   &deployment.ExecutionError{Component: "b.yml", ExitCode: 2, Output: "fatal: B failed", Err: staging},
	}

	var buf bytes.Buffer
	writeDiagnostics(&buf, report)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Deployment aborted (run run-1): component b.yml failed"))
	assert.Contains(t, out, "caused by *deployment.StagingError")
	assert.Contains(t, out, "no space left")
	assert.Contains(t, out, "--- output of b.yml ---\nfatal: B failed\n--- end of output ---\n")
}

func TestWriteDiagnostics_NoError(t *testing.T) {
	var buf bytes.Buffer
	writeDiagnostics(&buf, &Report{State: deployment.StateCompleted})
	assert.Empty(t, buf.String())
}
