package docker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/docker"
	"github.com/artpar/stagehand/internal/shell/docker/dockertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func startEnv(t *testing.T, fake *dockertest.FakeClient) *docker.Environment {
	t.Helper()
	lc := docker.NewLifecycle(fake, setupTestLogger(), nil)
	env, err := lc.Create(context.Background(), testSpec())
	require.NoError(t, err)
	return env
}

// =============================================================================
// Stage Tests
// =============================================================================

func TestStage_PlacesTreeUnderBaseName(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)

	src := filepath.Join(t.TempDir(), "foo")
	writeTree(t, src, map[string]string{
		"site.yml":              "- hosts: all\n",
		"roles/web/tasks/a.yml": "- debug: msg=hi\n",
	})

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	require.NoError(t, stager.Stage(context.Background(), src, "/rsc/plugins", env))

	c := fake.Container(env.ID)
	assert.Equal(t, "- hosts: all\n", string(c.Files["/rsc/plugins/foo/site.yml"]))
	assert.Equal(t, "- debug: msg=hi\n", string(c.Files["/rsc/plugins/foo/roles/web/tasks/a.yml"]))
	assert.True(t, c.Dirs["/rsc/plugins/foo"])
	assert.True(t, c.Dirs["/rsc/plugins/foo/roles/web"])
}

func TestStage_TrailingSlashUsesSameName(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)

	src := filepath.Join(t.TempDir(), "plays")
	writeTree(t, src, map[string]string{"main.yml": "x"})

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	require.NoError(t, stager.Stage(context.Background(), src+string(filepath.Separator), "/rsc/plugins", env))

	assert.Contains(t, fake.Container(env.ID).Files, "/rsc/plugins/plays/main.yml")
}

func TestStage_EmptyDirectory(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)

	src := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.Mkdir(src, 0o755))

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	require.NoError(t, stager.Stage(context.Background(), src, "/rsc/plugins", env))

	c := fake.Container(env.ID)
	assert.True(t, c.Dirs["/rsc/plugins/empty"])
	assert.Empty(t, c.Files)
}

func TestStage_SymlinkIsArchived(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)

	src := filepath.Join(t.TempDir(), "linked")
	writeTree(t, src, map[string]string{"real.yml": "x"})
	require.NoError(t, os.Symlink("real.yml", filepath.Join(src, "alias.yml")))

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	require.NoError(t, stager.Stage(context.Background(), src, "/rsc/plugins", env))

	assert.Contains(t, fake.Container(env.ID).Files, "/rsc/plugins/linked/real.yml")
}

func TestStage_SymlinkedSourceDir(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)

	dir := t.TempDir()
	target := filepath.Join(dir, "real-roles")
	writeTree(t, target, map[string]string{
		"site.yml":       "- hosts: all\n",
		"tasks/main.yml": "- debug: msg=hi\n",
	})
	link := filepath.Join(dir, "roles")
	require.NoError(t, os.Symlink(target, link))

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	require.NoError(t, stager.Stage(context.Background(), link, "/rsc/plugins", env))

	c := fake.Container(env.ID)
	assert.Equal(t, "- hosts: all\n", string(c.Files["/rsc/plugins/roles/site.yml"]))
	assert.Equal(t, "- debug: msg=hi\n", string(c.Files["/rsc/plugins/roles/tasks/main.yml"]))
	assert.True(t, c.Dirs["/rsc/plugins/roles"])
	assert.NotContains(t, c.Files, "/rsc/plugins/real-roles/site.yml")
}

func TestStage_MissingSource(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	err := stager.Stage(context.Background(), filepath.Join(t.TempDir(), "nope"), "/rsc/plugins", env)

	var stageErr *deployment.StagingError
	require.ErrorAs(t, err, &stageErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, fake.Count("copy"))
}

func TestStage_SourceIsFile(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)

	file := filepath.Join(t.TempDir(), "site.yml")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	err := stager.Stage(context.Background(), file, "/rsc/plugins", env)

	var stageErr *deployment.StagingError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "source is not a directory", stageErr.Message)
}

func TestStage_TransferRejected(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)
	fake.CopyErr = docker.ErrCopyFailed

	src := filepath.Join(t.TempDir(), "foo")
	writeTree(t, src, map[string]string{"site.yml": "x"})

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	err := stager.Stage(context.Background(), src, "/rsc/plugins", env)

	var stageErr *deployment.StagingError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "transfer rejected", stageErr.Message)
	assert.ErrorIs(t, err, docker.ErrCopyFailed)
}

func TestStage_MissingDestinationRejected(t *testing.T) {
	fake := dockertest.NewFakeClient()
	fake.StrictDirs = true
	env := startEnv(t, fake)

	src := filepath.Join(t.TempDir(), "foo")
	writeTree(t, src, map[string]string{"site.yml": "x"})

	stager := docker.NewStager(fake, setupTestLogger(), t.TempDir())
	err := stager.Stage(context.Background(), src, "/rsc/plugins", env)
	assert.ErrorIs(t, err, docker.ErrCopyFailed)

	fake.MkdirAll(env.ID, "/rsc/plugins")
	assert.NoError(t, stager.Stage(context.Background(), src, "/rsc/plugins", env))
}

func TestStage_ScratchDirectoryCleanedUp(t *testing.T) {
	fake := dockertest.NewFakeClient()
	env := startEnv(t, fake)

	src := filepath.Join(t.TempDir(), "foo")
	writeTree(t, src, map[string]string{"site.yml": "x"})
	scratch := t.TempDir()

	stager := docker.NewStager(fake, setupTestLogger(), scratch)
	require.NoError(t, stager.Stage(context.Background(), src, "/rsc/plugins", env))

	fake.CopyErr = docker.ErrCopyFailed
	require.Error(t, stager.Stage(context.Background(), src, "/rsc/plugins", env))

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
