// Package emitter writes generated files into an output project. Every run is
// staged inside the output directory and promoted as one batch; a failure
// restores the directory to its pre-run state.
package emitter

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/spec2test/internal/generr"
)

// GeneratedFile is one output file. Path is slash-separated and relative to
// the output directory.
type GeneratedFile struct {
	Path       string
	Content    []byte
	TemplateID string
}

// Options controls how files are written.
type Options struct {
	OutDir    string // required
	Mode      Mode
	Overwrite bool // allow new-project into a non-empty directory
	DryRun    bool // plan only
	Scaffold  ScaffoldOptions
	Logger    *slog.Logger

	fs fileOps
}

type Action string

const (
	ActionCreate    Action = "create"
	ActionOverwrite Action = "overwrite"
	ActionUnchanged Action = "unchanged"
)

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath    string
	Size       int
	Mode       os.FileMode
	Action     Action
	TemplateID string
}

type Result struct {
	Mode    Mode
	Planned []PlannedFile
	Written int
}

// Emit validates the batch, adds the scaffold in new-project mode and commits
// everything atomically. Files whose content is already on disk are left
// untouched.
func Emit(ctx context.Context, files []GeneratedFile, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, generr.New(generr.InvalidInput, "output directory is required")
	}
	if opts.Mode == 0 {
		opts.Mode = NewProject
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts.fs = opts.fs.withDefaults()

	abs, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, generr.Wrap(generr.IOFailure, err, "resolve output directory").At(opts.OutDir)
	}

	batch := append([]GeneratedFile(nil), files...)
	if opts.Mode == NewProject {
		scaffold, err := Scaffold(opts.Scaffold)
		if err != nil {
			return nil, err
		}
		batch = append(batch, scaffold...)
	}
	batch, err = normalizeBatch(batch)
	if err != nil {
		return nil, err
	}

	existed, err := preflight(abs, opts)
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedFile, 0, len(batch))
	for _, f := range batch {
		planned = append(planned, PlannedFile{
			RelPath:    f.Path,
			Size:       len(f.Content),
			Mode:       0o644,
			Action:     actionFor(filepath.Join(abs, filepath.FromSlash(f.Path)), f.Content),
			TemplateID: f.TemplateID,
		})
	}
	res := &Result{Mode: opts.Mode, Planned: planned}
	if opts.DryRun {
		return res, nil
	}

	c := &commit{root: abs, createdRoot: !existed, fs: opts.fs, logger: opts.Logger}
	written, err := c.run(ctx, batch)
	if err != nil {
		return nil, err
	}
	res.Written = written
	return res, nil
}

// normalizeBatch cleans paths, rejects escapes and duplicates, and sorts.
func normalizeBatch(files []GeneratedFile) ([]GeneratedFile, error) {
	seen := map[string]string{}
	out := make([]GeneratedFile, 0, len(files))
	for _, f := range files {
		rel := strings.ReplaceAll(strings.TrimSpace(f.Path), "\\", "/")
		if rel == "" || path.IsAbs(rel) || filepath.IsAbs(rel) {
			return nil, generr.New(generr.InvalidInput, "generated path must be relative").At(f.Path)
		}
		rel = path.Clean(rel)
		if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
			return nil, generr.New(generr.InvalidInput, "generated path escapes the output directory").At(f.Path)
		}
		if strings.HasPrefix(rel, workPrefix) {
			return nil, generr.New(generr.InvalidInput, "generated path uses a reserved name").At(f.Path)
		}
		if prev, ok := seen[strings.ToLower(rel)]; ok {
			return nil, generr.New(generr.NameCollision, "generated paths %s and %s collide", prev, rel).At(rel)
		}
		seen[strings.ToLower(rel)] = rel
		f.Path = rel
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// preflight applies the mode's destination rules and reports whether the
// output directory already exists. A new project may only go into an empty
// directory or one holding an earlier spec2test project.
func preflight(abs string, opts Options) (bool, error) {
	st, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		if opts.Mode == Merge {
			return false, generr.New(generr.InvalidInput, "merge target %s does not exist", abs).At(abs)
		}
		return false, nil
	case err != nil:
		return false, generr.Wrap(generr.IOFailure, err, "stat output directory").At(abs)
	case !st.IsDir():
		return true, generr.New(generr.IOFailure, "output path %s is not a directory", abs).At(abs)
	}
	if opts.Mode == NewProject && !opts.Overwrite {
		entries, err := os.ReadDir(abs)
		if err != nil {
			return true, generr.Wrap(generr.IOFailure, err, "read output directory").At(abs)
		}
		if len(entries) > 0 && !isProject(abs) {
			return true, generr.New(generr.DestinationNotEmpty,
				"output directory %s is not empty (use --overwrite or --mode merge)", abs).At(abs)
		}
	}
	return true, nil
}

// isProject reports whether dir was scaffolded by an earlier new-project run.
func isProject(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, filepath.FromSlash(projectMarker)))
	return err == nil && st.Mode().IsRegular()
}

func actionFor(dest string, content []byte) Action {
	existing, err := os.ReadFile(dest)
	if err != nil {
		return ActionCreate
	}
	if string(existing) == string(content) {
		return ActionUnchanged
	}
	return ActionOverwrite
}
