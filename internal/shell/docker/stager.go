package docker

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/artpar/stagehand/internal/core/deployment"
)

// =============================================================================
// Stager - Copies a local directory into an environment
// =============================================================================

// Stager packages local directories and places them inside environments.
// Stage calls targeting overlapping destinations must be serialized by the caller.
type Stager struct {
	docker     Client
	logger     *slog.Logger
	scratchDir string // Parent of per-call scratch directories; "" means os.TempDir
}

// NewStager creates a new Stager.
func NewStager(docker Client, logger *slog.Logger, scratchDir string) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{
		docker:     docker,
		logger:     logger,
		scratchDir: scratchDir,
	}
}

// Stage archives sourceDir under its base name and extracts it into destDir
// inside env, so that its contents appear at destDir/<base(sourceDir)>.
func (s *Stager) Stage(ctx context.Context, sourceDir, destDir string, env *Environment) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return &deployment.StagingError{Source: sourceDir, Dest: destDir, Message: "source directory not accessible", Err: err}
	}
	if !info.IsDir() {
		return &deployment.StagingError{Source: sourceDir, Dest: destDir, Message: "source is not a directory"}
	}

	scratch, err := os.MkdirTemp(s.scratchDir, "stagehand-stage-")
	if err != nil {
		return &deployment.StagingError{Source: sourceDir, Dest: destDir, Message: "failed to create scratch directory", Err: err}
	}
	defer os.RemoveAll(scratch)

	// WalkDir does not follow a symlinked root; archive the target's tree
	// under the link's own name.
	root, err := filepath.EvalSymlinks(sourceDir)
	if err != nil {
		return &deployment.StagingError{Source: sourceDir, Dest: destDir, Message: "source directory not accessible", Err: err}
	}

	baseName := deployment.StagedFolderName(sourceDir)
	archivePath := filepath.Join(scratch, baseName+".tar")
	if err := writeArchive(archivePath, root, baseName); err != nil {
		return &deployment.StagingError{Source: sourceDir, Dest: destDir, Message: "failed to archive source", Err: err}
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return &deployment.StagingError{Source: sourceDir, Dest: destDir, Message: "failed to reopen archive", Err: err}
	}
	defer archive.Close()

	if err := s.docker.CopyToContainer(ctx, env.ID, destDir, archive); err != nil {
		return &deployment.StagingError{Source: sourceDir, Dest: destDir, Message: "transfer rejected", Err: err}
	}

	s.logger.Debug("staged directory",
		"source", sourceDir,
		"dest", path.Join(destDir, baseName),
		"container", env.Name,
	)
	return nil
}

// writeArchive writes a tar of sourceDir to archivePath with every entry
// rooted at baseName.
func writeArchive(archivePath, sourceDir, baseName string) (err error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	tw := tar.NewWriter(f)
	walkErr := filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		return addEntry(tw, p, path.Join(baseName, filepath.ToSlash(rel)), d)
	})
	if walkErr != nil {
		return walkErr
	}
	return tw.Close()
}

func addEntry(tw *tar.Writer, fullPath, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(fullPath); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	src, err := os.Open(fullPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("archive %s: %w", fullPath, err)
	}
	return nil
}
