package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/docker"
	"github.com/artpar/stagehand/internal/shell/orchestrator"
	"github.com/artpar/stagehand/internal/shell/runner"
	"github.com/artpar/stagehand/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = orchestrator.ExitSuccess
	ExitConfigError     = orchestrator.ExitConfigError
	ExitDockerError     = orchestrator.ExitDockerError
	ExitComponentFailed = orchestrator.ExitComponentFailed
	ExitTeardownError   = orchestrator.ExitTeardownError
	ExitHistoryError    = 5
)

// =============================================================================
// App Error
// =============================================================================

// AppError carries the exit code a failed command should end with.
type AppError struct {
	Op       string
	Err      error
	ExitCode int
	Reported bool // Already written to the diagnostic stream
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// exitCodeOf maps a command error to a process exit status.
func exitCodeOf(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return ExitConfigError
}

// =============================================================================
// App
// =============================================================================

// App wires the docker client, strategies and history store into an
// orchestrator for one run.
type App struct {
	config  *Config
	logger  *slog.Logger
	docker  *docker.DockerClient
	history *store.SQLiteStore // nil when history is disabled
	orch    *orchestrator.Orchestrator
}

// NewApp creates an App from configuration.
func NewApp(cfg *Config, logger *slog.Logger, stdout, stderr io.Writer) (*App, error) {
	client, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitDockerError}
	}

	app := &App{
		config: cfg,
		logger: logger,
		docker: client,
	}

	lifecycle := docker.NewLifecycle(client, logger, stdout)
	if cfg.Environment.StopTimeout > 0 {
		lifecycle.WithStopTimeout(cfg.Environment.StopTimeout)
	}
	stager := docker.NewStager(client, logger, "")
	strategies := runner.Strategies{
		Remote: runner.NewRemote(&runner.ShellRunner{Shell: cfg.Tool.Shell}, logger, runner.RemoteConfig{
			Tool:      cfg.Tool.Binary,
			User:      cfg.Tool.User,
			Playbook:  cfg.Tool.ExternalPlaybook,
			Verbosity: cfg.Tool.Verbosity,
			Stdout:    stdout,
			Stderr:    stderr,
		}),
		Local: runner.NewLocal(client, stager, logger, runner.LocalConfig{
			Tool:       cfg.Tool.Binary,
			PluginRoot: cfg.Tool.PluginRoot,
		}),
	}

	deps := orchestrator.Dependencies{
		Environments: lifecycle,
		Strategies:   strategies,
		Console:      stdout,
		Diagnostics:  stderr,
	}

	// History is best effort; a run never fails because it cannot be journaled.
	if cfg.History.DSN != "" {
		history, err := store.NewSQLiteStore(cfg.History.DSN)
		if err != nil {
			logger.Warn("run history disabled", "dsn", cfg.History.DSN, "error", err)
		} else {
			app.history = history
			deps.Recorder = store.NewRecorder(history)
		}
	}

	app.orch = orchestrator.New(cfg.Settings(), deps, logger)
	return app, nil
}

// Run executes the deployment. SIGINT and SIGTERM abort the current
// component; the environment is still torn down.
func (a *App) Run(ctx context.Context) *orchestrator.Report {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("starting deployment",
		"workspace", a.config.Workspace,
		"method", a.config.Method,
		"image", a.config.Environment.Image,
		"container", a.config.Environment.Container,
	)
	return a.orch.Run(ctx)
}

// Close releases the docker client and the history store.
func (a *App) Close() error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	errs = append(errs, a.docker.Close())
	return errors.Join(errs...)
}

// =============================================================================
// History Listing
// =============================================================================

// openHistory opens the configured history store.
func openHistory(cfg *Config) (*store.SQLiteStore, error) {
	if cfg.History.DSN == "" {
		return nil, &AppError{
			Op:       "history",
			Err:      deployment.NewConfigurationError("history.dsn", "run history is not configured", deployment.ErrMissingKey),
			ExitCode: ExitConfigError,
		}
	}
	history, err := store.NewSQLiteStore(cfg.History.DSN)
	if err != nil {
		return nil, &AppError{Op: "history", Err: err, ExitCode: ExitHistoryError}
	}
	return history, nil
}

// printRuns writes one line per run, newest first.
func printRuns(w io.Writer, runs []deployment.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMETHOD\tSTATE\tDISPATCHED\tEXIT\tWORKSPACE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Method,
			r.State,
			r.Dispatched,
			r.ExitCode,
			r.Workspace,
		)
	}
	tw.Flush()
}

// printRun writes a run and its component results.
func printRun(w io.Writer, r *deployment.RunRecord) {
	fmt.Fprintf(w, "Run:        %s\n", r.ID)
	fmt.Fprintf(w, "Workspace:  %s\n", r.Workspace)
	fmt.Fprintf(w, "Method:     %s\n", r.Method)
	fmt.Fprintf(w, "Container:  %s (%s)\n", r.Container, r.Image)
	fmt.Fprintf(w, "State:      %s\n", r.State)
	fmt.Fprintf(w, "Exit code:  %d\n", r.ExitCode)
	fmt.Fprintf(w, "Started:    %s\n", r.StartedAt.Local().Format(time.DateTime))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:   %s\n", r.FinishedAt.Local().Format(time.DateTime))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", r.Error)
	}
	if len(r.Components) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOMPONENT\tSCRIPT FOLDER\tRESULT\tEXIT\tDURATION")
	for _, c := range r.Components {
		result := "ok"
		if !c.Succeeded {
			result = "failed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			c.Position+1,
			c.Path,
			c.ScriptFolder,
			result,
			c.ExitCode,
			c.Duration().Round(time.Millisecond),
		)
	}
	tw.Flush()
}
