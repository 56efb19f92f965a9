package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/docker"
)

// DefaultPluginRoot is where components are staged inside the environment.
const DefaultPluginRoot = "/rsc/plugins"

// LocalConfig configures the local-invocation strategy.
type LocalConfig struct {
	Tool       string // Defaults to deployment.DefaultTool
	PluginRoot string // Defaults to DefaultPluginRoot
}

// Local stages each component into the environment and runs the tool
// inside it against a local connection, streaming output back.
type Local struct {
	docker docker.Client
	stager *docker.Stager
	logger *slog.Logger
	config LocalConfig

	// mu serializes staging; every component lands under the same root.
	mu       sync.Mutex
	prepared map[string]bool // Environment IDs whose plugin root exists
}

var _ Strategy = (*Local)(nil)

// NewLocal creates a local-invocation strategy.
func NewLocal(client docker.Client, stager *docker.Stager, logger *slog.Logger, config LocalConfig) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PluginRoot == "" {
		config.PluginRoot = DefaultPluginRoot
	}
	return &Local{
		docker:   client,
		stager:   stager,
		logger:   logger,
		config:   config,
		prepared: make(map[string]bool),
	}
}

// Method implements Strategy.
func (l *Local) Method() deployment.Method {
	return deployment.MethodLocal
}

// Execute implements Strategy. The returned Result streams the tool's
// output; its exit code is available once the stream is drained.
func (l *Local) Execute(ctx context.Context, env *docker.Environment, inv deployment.Invocation) (*Result, error) {
	if err := l.stage(ctx, env, inv.ScriptFolder); err != nil {
		return nil, &deployment.ExecutionError{Component: inv.Path, ExitCode: -1, Err: err}
	}

	cmdline, err := deployment.LocalCommand(deployment.LocalCommandParams{
		Tool:       l.config.Tool,
		PluginRoot: l.config.PluginRoot,
		Invocation: inv,
	})
	if err != nil {
		return nil, &deployment.ExecutionError{Component: inv.Path, ExitCode: -1, Err: err}
	}

	l.logger.Debug("running local invocation", "component", inv.Path, "container", env.Name, "command", cmdline)

	session, err := l.docker.ExecContainer(ctx, env.ID, docker.ExecSpec{
		Command:    []string{"sh", "-c", cmdline},
		Privileged: true,
	})
	if err != nil {
		return nil, &deployment.ExecutionError{Component: inv.Path, ExitCode: -1, Err: err}
	}
	return Streaming(session.Output, session.ExitCode), nil
}

func (l *Local) stage(ctx context.Context, env *docker.Environment, scriptFolder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.prepared[env.ID] {
		if err := l.makePluginRoot(ctx, env); err != nil {
			return &deployment.StagingError{
				Source:  scriptFolder,
				Dest:    l.config.PluginRoot,
				Message: "failed to create plugin root",
				Err:     err,
			}
		}
		l.prepared[env.ID] = true
	}

	return l.stager.Stage(ctx, scriptFolder, l.config.PluginRoot, env)
}

// makePluginRoot creates the plugin root; the daemon refuses to extract
// archives into a missing directory.
func (l *Local) makePluginRoot(ctx context.Context, env *docker.Environment) error {
	session, err := l.docker.ExecContainer(ctx, env.ID, docker.ExecSpec{
		Command: []string{"mkdir", "-p", l.config.PluginRoot},
	})
	if err != nil {
		return err
	}
	defer session.Output.Close()

	out, err := io.ReadAll(session.Output)
	if err != nil {
		return fmt.Errorf("read mkdir output: %w", err)
	}
	code, err := session.ExitCode(ctx)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("mkdir -p %s exited with %d: %s", l.config.PluginRoot, code, strings.TrimSpace(string(out)))
	}
	return nil
}
