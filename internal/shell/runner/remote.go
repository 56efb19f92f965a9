package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/docker"
)

// RemoteConfig configures the remote-invocation strategy.
type RemoteConfig struct {
	Tool      string // Defaults to deployment.DefaultTool
	User      string // Defaults to root
	Playbook  string // External entry-point playbook on the host
	Verbosity int
	Stdout    io.Writer // Defaults to os.Stdout
	Stderr    io.Writer // Defaults to os.Stderr
}

// Remote runs the tool on the host and reaches the environment through the
// tool's docker connection plugin. Output is not captured.
type Remote struct {
	runner CommandRunner
	logger *slog.Logger
	config RemoteConfig
}

var _ Strategy = (*Remote)(nil)

// NewRemote creates a remote-invocation strategy.
func NewRemote(runner CommandRunner, logger *slog.Logger, config RemoteConfig) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	return &Remote{runner: runner, logger: logger, config: config}
}

// Method implements Strategy.
func (r *Remote) Method() deployment.Method {
	return deployment.MethodRemote
}

// Execute implements Strategy. It blocks until the tool exits.
func (r *Remote) Execute(ctx context.Context, env *docker.Environment, inv deployment.Invocation) (*Result, error) {
	cmdline, err := deployment.RemoteCommand(deployment.RemoteCommandParams{
		Tool:          r.config.Tool,
		User:          r.config.User,
		ContainerName: env.Name,
		Playbook:      r.config.Playbook,
		Verbosity:     r.config.Verbosity,
		Invocation:    inv,
	})
	if err != nil {
		return nil, &deployment.ExecutionError{Component: inv.Path, ExitCode: -1, Err: err}
	}

	r.logger.Debug("running remote invocation", "component", inv.Path, "container", env.Name)
	fmt.Fprintf(r.config.Stdout, "Running %s\n", cmdline)

	exitCode, err := r.runner.Run(ctx, cmdline, r.config.Stdout, r.config.Stderr)
	if err != nil {
		return nil, &deployment.ExecutionError{Component: inv.Path, ExitCode: -1, Err: err}
	}
	return Completed(exitCode), nil
}
