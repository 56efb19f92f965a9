package orchestrator

import (
	"errors"
	"time"

	"github.com/artpar/stagehand/internal/core/deployment"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDockerError     = 2
	ExitComponentFailed = 3
	ExitTeardownError   = 4
)

// =============================================================================
// Report
// =============================================================================

// ComponentResult is the outcome of one dispatched component.
type ComponentResult struct {
	Position   int
	Invocation deployment.Invocation
	ExitCode   int
	Err        error // *deployment.ExecutionError when the component failed
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the component ran to a zero exit status.
func (c ComponentResult) Succeeded() bool {
	return c.Err == nil
}

// Report is the outcome of one orchestration run.
type Report struct {
	RunID      string
	Method     deployment.Method
	Container  string
	State      deployment.RunState
	Dispatched int
	Results    []ComponentResult

	// Err is the error that ended the run; nil when it completed.
	Err error

	// TeardownErr is set when the environment could not be destroyed.
	TeardownErr error
}

// Succeeded reports whether every component ran and the environment was
// torn down.
func (r *Report) Succeeded() bool {
	return r.State.Succeeded() && r.Err == nil && r.TeardownErr == nil
}

// ExitCode maps the run's outcome to a process exit status.
func (r *Report) ExitCode() int {
	var (
		cfgErr    *deployment.ConfigurationError
		methodErr *deployment.UnknownMethodError
		provErr   *deployment.ProvisioningError
	)

	switch {
	case r.Err == nil && r.State.Succeeded():
		if r.TeardownErr != nil {
			return ExitTeardownError
		}
		return ExitSuccess
	case errors.As(r.Err, &cfgErr), errors.As(r.Err, &methodErr):
		return ExitConfigError
	case errors.As(r.Err, &provErr):
		return ExitDockerError
	default:
		return ExitComponentFailed
	}
}
