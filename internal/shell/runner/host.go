package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// CommandRunner runs a command line on the host.
type CommandRunner interface {
	// Run executes cmdline and returns its exit status. err is non-nil only
	// when the command could not be run or was cancelled.
	Run(ctx context.Context, cmdline string, stdout, stderr io.Writer) (exitCode int, err error)
}

// ShellRunner runs command lines through a POSIX shell with "-c".
type ShellRunner struct {
	Shell string   // Defaults to "sh"
	Dir   string   // Working directory; "" means the current one
	Env   []string // Appended to the process environment
}

// Run implements CommandRunner.
func (r ShellRunner) Run(ctx context.Context, cmdline string, stdout, stderr io.Writer) (int, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", cmdline)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, fmt.Errorf("command cancelled: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to execute command: %w", err)
	}
	return 0, nil
}
