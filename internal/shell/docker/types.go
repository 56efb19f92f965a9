// Package docker provides a Docker client and the container lifecycle for deployment runs.
package docker

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Name       string
	Image      string
	Command    []string
	Env        map[string]string
	Labels     map[string]string
	WorkingDir string
	User       string
	Tty        bool // Keep stdin-less shells alive
	Init       bool // Run an init process as PID 1
	AutoRemove bool // Remove the container once it stops
}

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	CreatedAt time.Time
	Labels    map[string]string
	ExitCode  int
}

// =============================================================================
// Exec Types
// =============================================================================

// ExecSpec defines a command run inside a running container.
type ExecSpec struct {
	Command    []string
	Env        map[string]string
	User       string
	WorkingDir string
	Privileged bool
}

// ExecSession is a started exec. Output yields stdout and stderr as the
// command produces them; it is finite and can be read once.
type ExecSession struct {
	ID     string
	Output io.ReadCloser

	exitCode func(ctx context.Context) (int, error)
}

// NewExecSession creates an ExecSession. exitCode is consulted after Output
// has been drained.
func NewExecSession(id string, output io.ReadCloser, exitCode func(ctx context.Context) (int, error)) *ExecSession {
	return &ExecSession{ID: id, Output: output, exitCode: exitCode}
}

// ExitCode returns the exit status of the finished command.
func (s *ExecSession) ExitCode(ctx context.Context) (int, error) {
	if s.exitCode == nil {
		return -1, ErrExecFailed
	}
	return s.exitCode(ctx)
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// PullOptions defines options for pulling images.
type PullOptions struct {
	Platform string // e.g., "linux/amd64"
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker client interface.
type Client interface {
	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	FindContainerByName(ctx context.Context, name string) (*ContainerInfo, error)

	// Exec and file transfer
	ExecContainer(ctx context.Context, containerID string, spec ExecSpec) (*ExecSession, error)
	CopyToContainer(ctx context.Context, containerID, destDir string, archive io.Reader) error
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error)

	// Image operations
	PullImage(ctx context.Context, image string, opts PullOptions) error
	ImageExists(ctx context.Context, image string) (bool, error)

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	LabelManaged = "com.stagehand.managed"
	LabelRun     = "com.stagehand.run"
)
