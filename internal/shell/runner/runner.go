// Package runner implements the execution strategies that run one
// component's automation tool against an environment.
package runner

import (
	"context"
	"io"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/docker"
)

// =============================================================================
// Strategy
// =============================================================================

// Strategy runs one component invocation against a running environment.
// Execute returns an *deployment.ExecutionError when the invocation could
// not be carried out at all; a tool that ran and failed is reported through
// the Result's exit code instead.
type Strategy interface {
	Method() deployment.Method
	Execute(ctx context.Context, env *docker.Environment, inv deployment.Invocation) (*Result, error)
}

// Strategies holds one implementation per method.
type Strategies struct {
	Remote Strategy
	Local  Strategy
}

// For returns the strategy registered for method.
func (s Strategies) For(method deployment.Method) (Strategy, error) {
	var strategy Strategy
	switch method {
	case deployment.MethodRemote:
		strategy = s.Remote
	case deployment.MethodLocal:
		strategy = s.Local
	}
	if strategy == nil {
		return nil, &deployment.UnknownMethodError{Method: string(method)}
	}
	return strategy, nil
}

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of one dispatched component.
type Result struct {
	// Output yields the tool's output as it is produced. It is nil when the
	// output went straight to the operator's terminal. It can be read once.
	Output io.ReadCloser

	exitCode func(ctx context.Context) (int, error)
}

// Completed returns a Result for a tool that has already exited.
func Completed(exitCode int) *Result {
	return &Result{exitCode: func(context.Context) (int, error) { return exitCode, nil }}
}

// Streaming returns a Result whose exit code is known once output is drained.
func Streaming(output io.ReadCloser, exitCode func(ctx context.Context) (int, error)) *Result {
	return &Result{Output: output, exitCode: exitCode}
}

// ExitCode returns the tool's exit status. For streaming results it must be
// called after Output has been drained.
func (r *Result) ExitCode(ctx context.Context) (int, error) {
	if r.exitCode == nil {
		return -1, docker.ErrExecFailed
	}
	return r.exitCode(ctx)
}

// Close releases the output stream, if any.
func (r *Result) Close() error {
	if r.Output == nil {
		return nil
	}
	return r.Output.Close()
}

// Succeeded reports whether an exit status counts as success. Only an
// explicit zero status does.
func Succeeded(exitCode int, err error) bool {
	return err == nil && exitCode == 0
}
