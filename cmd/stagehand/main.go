package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/orchestrator"
	"github.com/artpar/stagehand/internal/shell/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	if err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) || !appErr.Reported {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
	return exitCodeOf(err)
}

// =============================================================================
// Commands
// =============================================================================

// cli holds state shared by the commands of one invocation.
type cli struct {
	stdout       io.Writer
	stderr       io.Writer
	v            *viper.Viper
	settingsPath string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, v: newViper()}

	root := &cobra.Command{
		Use:   "stagehand",
		Short: "Run deployment components against a throwaway container",
		Long: `stagehand starts a container from a workspace image, runs every
component listed in the workspace document against it in order, stops at
the first failure and always stops the container afterwards.

Settings come from flags, STAGEHAND_* environment variables and an
optional settings file, in that order of precedence.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.settingsPath, "settings", "", "settings file (YAML, JSON or TOML)")
	pf.String("history", "", "run history database (SQLite DSN); empty disables history")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	c.bind("history.dsn", pf.Lookup("history"))
	c.bind("log.level", pf.Lookup("log-level"))

	root.AddCommand(c.newRunCmd(), c.newHistoryCmd(), c.newVersionCmd())
	return root
}

func (c *cli) bind(key string, flag *pflag.Flag) {
	if err := c.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag for %s: %v", key, err))
	}
}

func (c *cli) loadConfig() (*Config, error) {
	cfg, err := LoadConfig(c.v, c.settingsPath)
	if err != nil {
		return nil, &AppError{Op: "config", Err: err, ExitCode: ExitConfigError}
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// run
// -----------------------------------------------------------------------------

func (c *cli) newRunCmd() *cobra.Command {
	defaults := orchestrator.DefaultSettings()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every component of a workspace in a fresh environment",
		Example: `  stagehand run -w components.yml
  stagehand run -w components.yml -m local-invocation --stop-existing
  stagehand run -w components.yml --timeout 10m --history ./data/runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runDeployment(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringP("workspace", "w", "", "workspace document listing the components (required)")
	f.StringP("method", "m", defaults.Method, fmt.Sprintf("execution method, one of %v", deployment.Methods()))
	f.Bool("stop-existing", false, "stop a leftover container with the same name first")
	f.Duration("timeout", 0, "per-component timeout; 0 disables it")
	f.String("image", defaults.Image, "image the environment is started from")
	f.String("container", defaults.ContainerName, "name of the environment container")
	f.Bool("pull", false, "pull the image when it is missing locally")

	c.bind("workspace", f.Lookup("workspace"))
	c.bind("method", f.Lookup("method"))
	c.bind("stop_existing", f.Lookup("stop-existing"))
	c.bind("timeout", f.Lookup("timeout"))
	c.bind("environment.image", f.Lookup("image"))
	c.bind("environment.container", f.Lookup("container"))
	c.bind("environment.pull_missing", f.Lookup("pull"))

	return cmd
}

func (c *cli) runDeployment(ctx context.Context) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := SetupLogger(cfg, c.stderr)

	app, err := NewApp(cfg, logger, c.stdout, c.stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to release resources", "error", err)
		}
	}()

	report := app.Run(ctx)
	if report.Succeeded() {
		fmt.Fprintf(c.stdout, "Deployment completed: %d component(s) ran in %s\n", report.Dispatched, report.Container)
		return nil
	}
	return &AppError{
		Op:       "run",
		Err:      errors.Join(report.Err, report.TeardownErr),
		ExitCode: report.ExitCode(),
		Reported: true,
	}
}

// -----------------------------------------------------------------------------
// history
// -----------------------------------------------------------------------------

func (c *cli) newHistoryCmd() *cobra.Command {
	var opts store.ListOptions

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run's components",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			history, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			if len(args) == 1 {
				r, err := history.GetRun(cmd.Context(), args[0])
				if err != nil {
					return &AppError{Op: "history", Err: err, ExitCode: ExitHistoryError}
				}
				printRun(c.stdout, r)
				return nil
			}

			runs, err := history.ListRuns(cmd.Context(), opts.Normalize())
			if err != nil {
				return &AppError{Op: "history", Err: err, ExitCode: ExitHistoryError}
			}
			printRuns(c.stdout, runs)
			return nil
		},
	}

	defaults := store.DefaultListOptions()
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", defaults.Limit, "number of runs to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", defaults.Offset, "number of runs to skip")

	return cmd
}

// -----------------------------------------------------------------------------
// version
// -----------------------------------------------------------------------------

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(c.stdout, "stagehand %s (built %s)\n", Version, BuildTime)
		},
	}
}
