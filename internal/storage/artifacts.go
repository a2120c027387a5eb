// Package storage lays out artifacts on disk: a private work dir per job
// under <out_dir>/.work and flat final files directly in <out_dir>.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const workDirName = ".work"

type Artifacts struct {
	outDir string
}

func New(outDir string) (*Artifacts, error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, workDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Artifacts{outDir: abs}, nil
}

func (a *Artifacts) OutDir() string { return a.outDir }

// FinalPath is where an artifact named id ends up.
func (a *Artifacts) FinalPath(id, ext string) string {
	return filepath.Join(a.outDir, id+"."+ext)
}

// Workspace creates the work dir for jobID. It lives on the same
// filesystem as the final files so promotion is a rename.
func (a *Artifacts) Workspace(jobID string) (*Workspace, error) {
	if jobID == "" || jobID != filepath.Base(jobID) || jobID == "." || jobID == ".." {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	dir := filepath.Join(a.outDir, workDirName, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

type Workspace struct {
	Dir string
}

// Reset empties the work dir before a retry.
func (w *Workspace) Reset() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return err
	}
	return os.MkdirAll(w.Dir, 0755)
}

func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}

// Promote moves src to dst, refusing to overwrite an existing file.
func Promote(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("destination already exists: %s", dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return moveFile(src, dst)
}

// moveFile handles the logic of moving a file, falling back to cross-device copy if rename fails.
func moveFile(source, dest string) error {
	err := os.Rename(source, dest)
	if err == nil {
		return nil
	}

	// If it fails (likely cross-device), use our helper
	return moveCrossDevice(source, dest)
}

// moveCrossDevice copies into a hidden temp file next to destPath and
// renames it into place so readers never see a half-written artifact.
func moveCrossDevice(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")

	dst, err := os.Create(tempDest)
	if err != nil {
		return err
	}

	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	if err = dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	// Explicitly close before deleting the source
	src.Close()
	dst.Close()

	if err = os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}

	// Remove the original file only after copy success
	return os.Remove(sourcePath)
}
