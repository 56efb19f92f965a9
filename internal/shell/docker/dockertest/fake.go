// Package dockertest provides an in-memory docker.Client for tests.
package dockertest

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/stagehand/internal/shell/docker"
)

// ExecFunc produces the output and exit code of a fake exec.
type ExecFunc func(containerID string, spec docker.ExecSpec) (output string, exitCode int, err error)

// Container is the fake's view of one container.
type Container struct {
	ID         string
	Name       string
	Image      string
	Running    bool
	AutoRemove bool
	Labels     map[string]string
	Files      map[string][]byte // Absolute path → content
	Dirs       map[string]bool
}

// FakeClient implements docker.Client in memory. Error fields make the
// matching operation fail; Calls records every operation as "op:arg".
type FakeClient struct {
	mu sync.Mutex

	Containers map[string]*Container
	Images     map[string]bool
	Calls      []string

	CreateErr error
	StartErr  error
	StopErr   error
	CopyErr   error
	FindErr   error
	ExecErr   error
	PullErr   error

	Exec ExecFunc

	// StrictDirs makes CopyToContainer reject destinations not created
	// through MkdirAll, as the daemon does.
	StrictDirs bool

	nextID int
}

var _ docker.Client = (*FakeClient)(nil)

// NewFakeClient creates an empty FakeClient whose execs succeed silently.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Containers: make(map[string]*Container),
		Images:     make(map[string]bool),
	}
}

// Count returns how many times op was called.
func (f *FakeClient) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op || strings.HasPrefix(c, op+":") {
			n++
		}
	}
	return n
}

// CallLog returns a copy of the recorded calls.
func (f *FakeClient) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// AddContainer registers a pre-existing container.
func (f *FakeClient) AddContainer(c *Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Files == nil {
		c.Files = make(map[string][]byte)
	}
	if c.Dirs == nil {
		c.Dirs = make(map[string]bool)
	}
	f.Containers[c.ID] = c
}

// Container returns the container with id, or nil.
func (f *FakeClient) Container(id string) *Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Containers[id]
}

func (f *FakeClient) record(op, arg string) {
	f.Calls = append(f.Calls, op+":"+arg)
}

func notFound(op, id string) error {
	return docker.NewDockerError(op, "container", id, "container not found", docker.ErrContainerNotFound)
}

// =============================================================================
// Container Operations
// =============================================================================

func (f *FakeClient) CreateContainer(_ context.Context, spec docker.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create", spec.Name)

	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	for _, c := range f.Containers {
		if c.Name == spec.Name {
			return "", docker.NewDockerError("CreateContainer", "container", spec.Name, "container already exists", docker.ErrContainerAlreadyExists)
		}
	}

	f.nextID++
	id := fmt.Sprintf("%064d", f.nextID)
	f.Containers[id] = &Container{
		ID:         id,
		Name:       spec.Name,
		Image:      spec.Image,
		AutoRemove: spec.AutoRemove,
		Labels:     spec.Labels,
		Files:      make(map[string][]byte),
		Dirs:       map[string]bool{"/": true},
	}
	return id, nil
}

func (f *FakeClient) StartContainer(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start", containerID)

	if f.StartErr != nil {
		return f.StartErr
	}
	c, ok := f.Containers[containerID]
	if !ok {
		return notFound("StartContainer", containerID)
	}
	c.Running = true
	return nil
}

func (f *FakeClient) StopContainer(_ context.Context, containerID string, _ *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop", containerID)

	if f.StopErr != nil {
		return f.StopErr
	}
	c, ok := f.Containers[containerID]
	if !ok {
		return notFound("StopContainer", containerID)
	}
	c.Running = false
	if c.AutoRemove {
		delete(f.Containers, containerID)
	}
	return nil
}

func (f *FakeClient) RemoveContainer(_ context.Context, containerID string, _ docker.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove", containerID)

	if _, ok := f.Containers[containerID]; !ok {
		return notFound("RemoveContainer", containerID)
	}
	delete(f.Containers, containerID)
	return nil
}

func (f *FakeClient) InspectContainer(_ context.Context, containerID string) (*docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect", containerID)

	c, ok := f.Containers[containerID]
	if !ok {
		return nil, notFound("InspectContainer", containerID)
	}
	return info(c), nil
}

func (f *FakeClient) FindContainerByName(_ context.Context, name string) (*docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("find", name)

	if f.FindErr != nil {
		return nil, f.FindErr
	}
	for _, c := range f.Containers {
		if c.Name == name {
			return info(c), nil
		}
	}
	return nil, notFound("FindContainerByName", name)
}

func info(c *Container) *docker.ContainerInfo {
	status := docker.ContainerStatusExited
	if c.Running {
		status = docker.ContainerStatusRunning
	}
	return &docker.ContainerInfo{ID: c.ID, Name: c.Name, Image: c.Image, Status: status, Labels: c.Labels}
}

// =============================================================================
// Exec and Copy Operations
// =============================================================================

func (f *FakeClient) ExecContainer(_ context.Context, containerID string, spec docker.ExecSpec) (*docker.ExecSession, error) {
	f.mu.Lock()
	f.record("exec", containerID)
	execErr := f.ExecErr
	c, ok := f.Containers[containerID]
	running := ok && c.Running
	fn := f.Exec
	f.mu.Unlock()

	if execErr != nil {
		return nil, execErr
	}
	if !ok {
		return nil, notFound("ExecContainer", containerID)
	}
	if !running {
		return nil, docker.NewDockerError("ExecContainer", "container", containerID, "container is not running", docker.ErrContainerNotRunning)
	}

	output, exitCode := "", 0
	if fn != nil {
		var err error
		if output, exitCode, err = fn(containerID, spec); err != nil {
			return nil, err
		}
	}

	return docker.NewExecSession("exec-"+containerID, io.NopCloser(strings.NewReader(output)), func(context.Context) (int, error) {
		return exitCode, nil
	}), nil
}

func (f *FakeClient) CopyToContainer(_ context.Context, containerID, destDir string, archive io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("copy", containerID+":"+destDir)

	if f.CopyErr != nil {
		return f.CopyErr
	}
	c, ok := f.Containers[containerID]
	if !ok {
		return notFound("CopyToContainer", containerID)
	}
	if f.StrictDirs && !c.Dirs[path.Clean(destDir)] {
		return docker.NewDockerError("CopyToContainer", "container", containerID, "no such directory: "+destDir, docker.ErrCopyFailed)
	}

	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return docker.NewDockerError("CopyToContainer", "container", containerID, err.Error(), docker.ErrCopyFailed)
		}
		target := path.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			c.Dirs[target] = true
		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				return err
			}
			c.Files[target] = data
		}
	}
}

func (f *FakeClient) CopyFromContainer(_ context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("copy-from", containerID+":"+srcPath)

	c, ok := f.Containers[containerID]
	if !ok {
		return nil, notFound("CopyFromContainer", containerID)
	}

	parent := path.Dir(srcPath)
	var names []string
	for p := range c.Files {
		if p == srcPath || strings.HasPrefix(p, srcPath+"/") {
			names = append(names, p)
		}
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, p := range names {
		rel := strings.TrimPrefix(strings.TrimPrefix(p, parent), "/")
		data := c.Files[p]
		if err := tw.WriteHeader(&tar.Header{Name: rel, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

// =============================================================================
// Image and Health Operations
// =============================================================================

func (f *FakeClient) PullImage(_ context.Context, image string, _ docker.PullOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull", image)

	if f.PullErr != nil {
		return f.PullErr
	}
	f.Images[image] = true
	return nil
}

func (f *FakeClient) ImageExists(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("image-exists", image)
	return f.Images[image], nil
}

func (f *FakeClient) Ping(context.Context) error { return nil }

func (f *FakeClient) Close() error { return nil }

// MkdirAll marks dir and its parents as existing in the container.
func (f *FakeClient) MkdirAll(containerID, dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Containers[containerID]
	if !ok {
		return
	}
	for d := path.Clean(dir); ; d = path.Dir(d) {
		c.Dirs[d] = true
		if d == "/" || d == "." {
			return
		}
	}
}
