package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/stagehand/internal/core/deployment"
)

// =============================================================================
// Environment
// =============================================================================

// EnvironmentSpec describes the ephemeral container for one run.
type EnvironmentSpec struct {
	Image       string
	Name        string
	Command     []string // Defaults to an idle shell
	AutoRemove  bool
	PullMissing bool // Pull Image when it is not present locally
	Labels      map[string]string
}

// Environment is the running ephemeral container. It is owned by the
// Lifecycle that created it and destroyed exactly once.
type Environment struct {
	ID    string
	Name  string
	Image string

	autoRemove bool

	mu        sync.Mutex
	destroyed bool
}

// IsAlive reports whether the environment has not been destroyed yet.
func (e *Environment) IsAlive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.destroyed
}

// =============================================================================
// Lifecycle
// =============================================================================

// defaultIdleCommand keeps the container alive awaiting exec calls.
var defaultIdleCommand = []string{"/bin/bash"}

// Lifecycle creates and destroys environments.
type Lifecycle struct {
	docker      Client
	logger      *slog.Logger
	notice      io.Writer
	stopTimeout *time.Duration
}

// NewLifecycle creates a new Lifecycle. notice receives the operator-facing
// message naming each created container.
func NewLifecycle(docker Client, logger *slog.Logger, notice io.Writer) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	if notice == nil {
		notice = io.Discard
	}
	return &Lifecycle{
		docker: docker,
		logger: logger,
		notice: notice,
	}
}

// WithStopTimeout sets how long Destroy waits before the daemon kills the container.
func (l *Lifecycle) WithStopTimeout(timeout time.Duration) *Lifecycle {
	l.stopTimeout = &timeout
	return l
}

// StopExisting stops and removes a leftover container with the given name,
// if any, so the name is free for Create. It is best effort: lookup, stop
// and remove failures are logged and swallowed.
func (l *Lifecycle) StopExisting(ctx context.Context, name string) {
	existing, err := l.docker.FindContainerByName(ctx, name)
	if err != nil {
		l.logger.Debug("no previous environment to stop", "container", name, "error", err)
		return
	}

	l.logger.Info("stopping previous environment", "container", name, "container_id", shortID(existing.ID))
	if err := l.docker.StopContainer(ctx, existing.ID, l.stopTimeout); err != nil && !isGone(err) {
		l.logger.Debug("failed to stop previous environment", "container", name, "error", err)
	}

	// An auto-removed container is already gone by now; one created
	// without auto-remove would still hold the name.
	if err := l.docker.RemoveContainer(ctx, existing.ID, RemoveOptions{Force: true}); err != nil && !isGone(err) {
		l.logger.Debug("failed to remove previous environment", "container", name, "error", err)
	}
}

// Create starts a new environment. A container that was created but could
// not be started is removed before the ProvisioningError is returned.
func (l *Lifecycle) Create(ctx context.Context, spec EnvironmentSpec) (*Environment, error) {
	if spec.PullMissing {
		if err := l.ensureImage(ctx, spec.Image); err != nil {
			return nil, &deployment.ProvisioningError{Image: spec.Image, Name: spec.Name, Err: err}
		}
	}

	command := spec.Command
	if len(command) == 0 {
		command = defaultIdleCommand
	}

	labels := map[string]string{LabelManaged: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	containerID, err := l.docker.CreateContainer(ctx, ContainerSpec{
		Name:       spec.Name,
		Image:      spec.Image,
		Command:    command,
		Labels:     labels,
		Tty:        true,
		Init:       true,
		AutoRemove: spec.AutoRemove,
	})
	if err != nil {
		return nil, &deployment.ProvisioningError{Image: spec.Image, Name: spec.Name, Err: err}
	}

	if err := l.docker.StartContainer(ctx, containerID); err != nil {
		if rmErr := l.docker.RemoveContainer(context.WithoutCancel(ctx), containerID, RemoveOptions{Force: true}); rmErr != nil && !errors.Is(rmErr, ErrContainerNotFound) {
			l.logger.Error("failed to remove partially created environment",
				"container", spec.Name,
				"container_id", shortID(containerID),
				"error", rmErr,
			)
		}
		return nil, &deployment.ProvisioningError{Image: spec.Image, Name: spec.Name, ContainerID: containerID, Err: err}
	}

	fmt.Fprintf(l.notice, "Container started -- do not forget to stop it! Container name: %s\n", spec.Name)
	l.logger.Info("environment created",
		"container", spec.Name,
		"container_id", shortID(containerID),
		"image", spec.Image,
	)

	return &Environment{
		ID:         containerID,
		Name:       spec.Name,
		Image:      spec.Image,
		autoRemove: spec.AutoRemove,
	}, nil
}

// Destroy stops the environment; with auto-remove the daemon also reclaims
// it. Calling Destroy again, or on a container that is already gone, is a no-op.
func (l *Lifecycle) Destroy(ctx context.Context, env *Environment) error {
	if env == nil {
		return nil
	}

	env.mu.Lock()
	if env.destroyed {
		env.mu.Unlock()
		return nil
	}
	env.destroyed = true
	env.mu.Unlock()

	if err := l.docker.StopContainer(ctx, env.ID, l.stopTimeout); err != nil && !isGone(err) {
		return fmt.Errorf("stop environment %s: %w", env.Name, err)
	}

	if !env.autoRemove {
		if err := l.docker.RemoveContainer(ctx, env.ID, RemoveOptions{Force: true}); err != nil && !isGone(err) {
			return fmt.Errorf("remove environment %s: %w", env.Name, err)
		}
	}

	l.logger.Info("environment destroyed", "container", env.Name, "container_id", shortID(env.ID))
	return nil
}

func (l *Lifecycle) ensureImage(ctx context.Context, image string) error {
	exists, err := l.docker.ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	l.logger.Info("pulling image", "image", image)
	return l.docker.PullImage(ctx, image, PullOptions{})
}

// isGone reports errors that mean the container no longer needs stopping.
func isGone(err error) bool {
	return errors.Is(err, ErrContainerNotFound) || errors.Is(err, ErrContainerNotRunning)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
