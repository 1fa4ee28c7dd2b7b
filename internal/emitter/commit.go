package emitter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/spec2test/internal/generr"
)

// workPrefix names the staging and backup directories created inside the
// output directory for the duration of a commit.
const workPrefix = ".spec2test-"

// fileOps are the filesystem calls a commit makes. Tests replace them to
// inject failures.
type fileOps struct {
	writeFile func(name string, data []byte, perm os.FileMode) error
	rename    func(oldpath, newpath string) error
}

func (f fileOps) withDefaults() fileOps {
	if f.writeFile == nil {
		f.writeFile = os.WriteFile
	}
	if f.rename == nil {
		f.rename = os.Rename
	}
	return f
}

type commit struct {
	root        string
	createdRoot bool
	fs          fileOps
	logger      *slog.Logger

	staging     string
	backup      string
	parents     []string // missing ancestors of root created by this commit, outermost first
	createdDirs []string // in creation order
	promoted    []string // destination paths now holding new content
	backedUp    []string // relative paths moved into the backup directory
}

// run stages every file, then promotes them. Any failure rolls back to the
// pre-run state.
func (c *commit) run(ctx context.Context, files []GeneratedFile) (int, error) {
	if c.createdRoot {
		if err := c.createRoot(); err != nil {
			c.removeParents()
			return 0, generr.Wrap(generr.IOFailure, err, "create output directory").At(c.root)
		}
	}

	pending, err := c.stage(files)
	if err == nil && ctx.Err() != nil {
		err = generr.Wrap(generr.Canceled, ctx.Err(), "run canceled before commit")
	}
	if err == nil {
		err = c.promote(pending)
	}
	if err != nil {
		c.rollback()
		return 0, err
	}
	c.cleanup()
	return len(pending), nil
}

// stage writes changed files under the staging directory and returns their
// relative paths. Unchanged files are skipped.
func (c *commit) stage(files []GeneratedFile) ([]string, error) {
	dir, err := os.MkdirTemp(c.root, workPrefix+"staging-")
	if err != nil {
		return nil, generr.Wrap(generr.IOFailure, err, "create staging directory").At(c.root)
	}
	c.staging = dir

	var pending []string
	for _, f := range files {
		dest := filepath.Join(c.root, filepath.FromSlash(f.Path))
		if existing, err := os.ReadFile(dest); err == nil && bytes.Equal(existing, f.Content) {
			continue
		}
		p := filepath.Join(c.staging, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, generr.Wrap(generr.IOFailure, err, "stage %s", f.Path).At(f.Path)
		}
		if err := c.fs.writeFile(p, f.Content, 0o644); err != nil {
			return nil, generr.Wrap(generr.IOFailure, err, "stage %s", f.Path).At(f.Path)
		}
		pending = append(pending, f.Path)
	}
	return pending, nil
}

func (c *commit) promote(pending []string) error {
	for _, rel := range pending {
		dest := filepath.Join(c.root, filepath.FromSlash(rel))
		if err := c.ensureDir(filepath.Dir(dest)); err != nil {
			return generr.Wrap(generr.IOFailure, err, "create directory for %s", rel).At(rel)
		}
		st, err := os.Lstat(dest)
		switch {
		case err == nil && st.IsDir():
			return generr.New(generr.IOFailure, "cannot replace directory %s with a file", rel).At(rel)
		case err == nil:
			if err := c.backupFile(rel); err != nil {
				return generr.Wrap(generr.IOFailure, err, "back up %s", rel).At(rel)
			}
		case !errors.Is(err, os.ErrNotExist):
			return generr.Wrap(generr.IOFailure, err, "stat %s", rel).At(rel)
		}
		if err := c.fs.rename(filepath.Join(c.staging, filepath.FromSlash(rel)), dest); err != nil {
			return generr.Wrap(generr.IOFailure, err, "promote %s", rel).At(rel)
		}
		c.promoted = append(c.promoted, rel)
	}
	return nil
}

func (c *commit) backupFile(rel string) error {
	if c.backup == "" {
		dir, err := os.MkdirTemp(c.root, workPrefix+"backup-")
		if err != nil {
			return err
		}
		c.backup = dir
	}
	saved := filepath.Join(c.backup, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(saved), 0o755); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(c.root, filepath.FromSlash(rel)), saved); err != nil {
		return err
	}
	c.backedUp = append(c.backedUp, rel)
	return nil
}

// createRoot creates the output directory along with any missing ancestors,
// recording the ancestors so a rollback can take them away again.
func (c *commit) createRoot() error {
	var missing []string
	for d := c.root; ; {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0o755); err != nil && !os.IsExist(err) {
			return err
		}
		if missing[i] != c.root {
			c.parents = append(c.parents, missing[i])
		}
	}
	return nil
}

// removeParents removes the recorded ancestors, innermost first. Only empty
// directories go.
func (c *commit) removeParents() {
	for i := len(c.parents) - 1; i >= 0; i-- {
		if err := os.Remove(c.parents[i]); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("rollback: remove parent directory", "path", c.parents[i], "err", err)
		}
	}
}

// ensureDir creates dir and records every level it had to create.
func (c *commit) ensureDir(dir string) error {
	var missing []string
	for d := dir; d != c.root && strings.HasPrefix(d, c.root); d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0o755); err != nil && !os.IsExist(err) {
			return err
		}
		c.createdDirs = append(c.createdDirs, missing[i])
	}
	return nil
}

func (c *commit) rollback() {
	for i := len(c.promoted) - 1; i >= 0; i-- {
		rel := c.promoted[i]
		if err := os.Remove(filepath.Join(c.root, filepath.FromSlash(rel))); err != nil {
			c.logger.Warn("rollback: remove promoted file", "path", rel, "err", err)
		}
	}
	for i := len(c.backedUp) - 1; i >= 0; i-- {
		rel := c.backedUp[i]
		if err := os.Rename(filepath.Join(c.backup, filepath.FromSlash(rel)), filepath.Join(c.root, filepath.FromSlash(rel))); err != nil {
			c.logger.Warn("rollback: restore file", "path", rel, "err", err)
		}
	}
	for i := len(c.createdDirs) - 1; i >= 0; i-- {
		_ = os.Remove(c.createdDirs[i])
	}
	c.cleanup()
	if c.createdRoot {
		_ = os.RemoveAll(c.root)
		c.removeParents()
	}
}

func (c *commit) cleanup() {
	if c.staging != "" {
		_ = os.RemoveAll(c.staging)
	}
	if c.backup != "" {
		_ = os.RemoveAll(c.backup)
	}
}
