// Package orchestrator runs a workspace's components against an ephemeral
// environment and guarantees the environment is torn down afterwards.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/docker"
	"github.com/artpar/stagehand/internal/shell/runner"
	"github.com/google/uuid"
)

// destroyTimeout bounds teardown, which runs even after the run's context ends.
const destroyTimeout = 30 * time.Second

// =============================================================================
// Settings and Dependencies
// =============================================================================

// Settings is the run configuration.
type Settings struct {
	WorkspacePath    string // Workspace document; required
	Method           string // Execution method selector
	Image            string
	ContainerName    string
	StopExisting     bool // Stop a same-named leftover container first
	AutoRemove       bool
	PullMissing      bool
	Arguments        string        // Pass-through tool arguments
	ComponentTimeout time.Duration // Zero means no limit
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Method:        string(deployment.MethodRemote),
		Image:         "src-basic-workspace",
		ContainerName: "src-test-container",
		AutoRemove:    true,
		Arguments:     deployment.DefaultArguments,
	}
}

// Environments creates and destroys the run's environment.
type Environments interface {
	StopExisting(ctx context.Context, name string)
	Create(ctx context.Context, spec docker.EnvironmentSpec) (*docker.Environment, error)
	Destroy(ctx context.Context, env *docker.Environment) error
}

var _ Environments = (*docker.Lifecycle)(nil)

// Recorder journals runs. Recording failures never fail a run.
type Recorder interface {
	RunStarted(ctx context.Context, run *deployment.RunRecord) error
	ComponentFinished(ctx context.Context, run *deployment.RunRecord, result *deployment.ComponentRecord) error
	RunFinished(ctx context.Context, run *deployment.RunRecord) error
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Environments Environments
	Strategies   runner.Strategies
	Recorder     Recorder // Optional

	Console     io.Writer // Operator messages and streamed output; defaults to os.Stdout
	Diagnostics io.Writer // Failure diagnostics; defaults to os.Stderr

	ReadFile  func(path string) ([]byte, error) // Defaults to os.ReadFile
	LookupEnv func(key string) (string, bool)   // Defaults to os.LookupEnv
	Now       func() time.Time                  // Defaults to time.Now
	NewRunID  func() string                     // Defaults to uuid.NewString
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator drives one deployment run at a time.
type Orchestrator struct {
	settings Settings
	deps     Dependencies
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(settings Settings, deps Dependencies, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.Arguments == "" {
		settings.Arguments = deployment.DefaultArguments
	}
	if deps.Console == nil {
		deps.Console = os.Stdout
	}
	if deps.Diagnostics == nil {
		deps.Diagnostics = os.Stderr
	}
	if deps.ReadFile == nil {
		deps.ReadFile = os.ReadFile
	}
	if deps.LookupEnv == nil {
		deps.LookupEnv = os.LookupEnv
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	return &Orchestrator{settings: settings, deps: deps, logger: logger}
}

// run carries the state of one Run call.
type run struct {
	report *Report
	record *deployment.RunRecord
	logger *slog.Logger
}

// Run executes every component of the workspace in order and returns the
// outcome. The environment, once created, is destroyed exactly once
// whatever the outcome.
func (o *Orchestrator) Run(ctx context.Context) *Report {
	id := o.deps.NewRunID()
	r := &run{
		report: &Report{
			RunID:     id,
			Container: o.settings.ContainerName,
			State:     deployment.StateInitializing,
		},
		record: &deployment.RunRecord{
			ID:        id,
			Workspace: o.settings.WorkspacePath,
			Method:    deployment.Method(o.settings.Method),
			Image:     o.settings.Image,
			Container: o.settings.ContainerName,
			State:     deployment.StateInitializing,
			StartedAt: o.deps.Now(),
		},
		logger: o.logger.With("run_id", id),
	}
	o.recordStart(ctx, r)

	cfg, strategy, err := o.initialize()
	if err != nil {
		o.finish(ctx, r, deployment.StateFailed, err)
		return r.report
	}
	r.report.Method = strategy.Method()
	r.record.Method = strategy.Method()
	fmt.Fprintf(o.deps.Console, "Execution method: %s\n", strategy.Method())

	if o.settings.StopExisting {
		o.deps.Environments.StopExisting(ctx, o.settings.ContainerName)
	}

	fmt.Fprintf(o.deps.Console, "Starting environment from image %s...\n", o.settings.Image)
	env, err := o.deps.Environments.Create(ctx, docker.EnvironmentSpec{
		Image:       o.settings.Image,
		Name:        o.settings.ContainerName,
		AutoRemove:  o.settings.AutoRemove,
		PullMissing: o.settings.PullMissing,
		Labels:      map[string]string{docker.LabelRun: id},
	})
	if err != nil {
		o.finish(ctx, r, deployment.StateFailed, err)
		return r.report
	}
	defer o.destroy(ctx, r, env)

	o.transition(r, deployment.StateRunning)

	for i, c := range cfg.Components {
		inv := deployment.BuildInvocation(cfg, c, o.settings.Arguments)

		r.report.Dispatched++
		r.record.Dispatched = r.report.Dispatched
		result := o.dispatch(ctx, r, env, strategy, i, inv)
		r.report.Results = append(r.report.Results, result)
		o.recordComponent(ctx, r, result)

		if !result.Succeeded() {
			o.finish(ctx, r, deployment.StateAborted, result.Err)
			return r.report
		}
	}

	o.finish(ctx, r, deployment.StateCompleted, nil)
	return r.report
}

// initialize loads the workspace and selects the strategy. Nothing it
// does needs cleaning up.
func (o *Orchestrator) initialize() (*deployment.WorkspaceConfig, runner.Strategy, error) {
	if o.settings.WorkspacePath == "" {
		return nil, nil, deployment.NewConfigurationError("workspace", "path to the workspace document is required", deployment.ErrMissingKey)
	}

	data, err := o.deps.ReadFile(o.settings.WorkspacePath)
	if err != nil {
		return nil, nil, deployment.NewConfigurationError("workspace", "cannot read "+o.settings.WorkspacePath, err)
	}

	cfg, err := deployment.LoadWorkspace(data, o.deps.LookupEnv)
	if err != nil {
		return nil, nil, err
	}

	method, err := deployment.ParseMethod(o.settings.Method)
	if err != nil {
		return nil, nil, err
	}

	strategy, err := o.deps.Strategies.For(method)
	if err != nil {
		return nil, nil, err
	}

	return cfg, strategy, nil
}

// dispatch runs one component and mirrors its output to the console as it
// arrives.
func (o *Orchestrator) dispatch(ctx context.Context, r *run, env *docker.Environment, strategy runner.Strategy, position int, inv deployment.Invocation) (result ComponentResult) {
	result = ComponentResult{Position: position, Invocation: inv, ExitCode: -1, StartedAt: o.deps.Now()}
	logger := r.logger.With("component", inv.Path, "position", position)
	logger.Info("dispatching component", "script_folder", inv.ScriptFolder)

	if o.settings.ComponentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.settings.ComponentTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			result.Err = &deployment.ExecutionError{Component: inv.Path, ExitCode: -1, Err: fmt.Errorf("panic: %v", p)}
		}
		result.FinishedAt = o.deps.Now()
		if result.Err != nil {
			logger.Error("component failed", "exit_code", result.ExitCode, "error", result.Err)
		} else {
			logger.Info("component succeeded", "duration", result.FinishedAt.Sub(result.StartedAt))
		}
	}()

	res, err := strategy.Execute(ctx, env, inv)
	if err != nil {
		result.Err = err
		return result
	}
	defer res.Close()

	tail := newTailBuffer(outputTailSize)
	if res.Output != nil {
		// Unblock the read when the component's deadline passes.
		stop := context.AfterFunc(ctx, func() { res.Close() })
		defer stop()

		if _, err := io.Copy(io.MultiWriter(o.deps.Console, tail), res.Output); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			result.Err = &deployment.ExecutionError{Component: inv.Path, ExitCode: -1, Output: tail.String(), Err: err}
			return result
		}
	}

	code, err := res.ExitCode(ctx)
	result.ExitCode = code
	if !runner.Succeeded(code, err) {
		result.Err = &deployment.ExecutionError{Component: inv.Path, ExitCode: code, Output: tail.String(), Err: err}
	}
	return result
}

// destroy tears the environment down with a context that outlives the run's.
func (o *Orchestrator) destroy(ctx context.Context, r *run, env *docker.Environment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), destroyTimeout)
	defer cancel()

	err := o.deps.Environments.Destroy(ctx, env)
	if err == nil {
		return
	}

	r.report.TeardownErr = err
	r.logger.Error("failed to destroy environment", "container", env.Name, "error", err)
	fmt.Fprintf(o.deps.Diagnostics, "Failed to stop container %s: %v\n", env.Name, err)

	if o.deps.Recorder != nil {
		r.record.ExitCode = r.report.ExitCode()
		if r.record.Error == "" {
			r.record.Error = err.Error()
		}
		if recErr := o.deps.Recorder.RunFinished(ctx, r.record); recErr != nil {
			r.logger.Warn("failed to record teardown failure", "error", recErr)
		}
	}
}

// =============================================================================
// State and Recording
// =============================================================================

func (o *Orchestrator) transition(r *run, to deployment.RunState) {
	if !deployment.CanTransition(r.report.State, to) {
		r.logger.Error("illegal run state transition", "from", r.report.State, "to", to)
	}
	r.report.State = to
	r.record.State = to
}

func (o *Orchestrator) finish(ctx context.Context, r *run, state deployment.RunState, err error) {
	o.transition(r, state)
	r.report.Err = err

	r.record.Finish(state, r.report.ExitCode(), err, o.deps.Now())
	if o.deps.Recorder != nil {
		if recErr := o.deps.Recorder.RunFinished(context.WithoutCancel(ctx), r.record); recErr != nil {
			r.logger.Warn("failed to record run outcome", "error", recErr)
		}
	}

	if err != nil {
		r.logger.Error("deployment run ended", "state", state, "dispatched", r.report.Dispatched, "error", err)
		writeDiagnostics(o.deps.Diagnostics, r.report)
		return
	}
	r.logger.Info("deployment run ended", "state", state, "dispatched", r.report.Dispatched)
}

func (o *Orchestrator) recordStart(ctx context.Context, r *run) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.RunStarted(ctx, r.record); err != nil {
		r.logger.Warn("failed to record run start", "error", err)
	}
}

func (o *Orchestrator) recordComponent(ctx context.Context, r *run, result ComponentResult) {
	if o.deps.Recorder == nil {
		return
	}

	rec := &deployment.ComponentRecord{
		RunID:        r.record.ID,
		Position:     result.Position,
		Path:         result.Invocation.Path,
		ScriptFolder: result.Invocation.ScriptFolder,
		ExitCode:     result.ExitCode,
		Succeeded:    result.Succeeded(),
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}

	if err := o.deps.Recorder.ComponentFinished(context.WithoutCancel(ctx), r.record, rec); err != nil {
		r.logger.Warn("failed to record component result", "component", rec.Path, "error", err)
	}
}
