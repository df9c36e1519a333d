// Package packager builds a zip archive from a source folder. Files listed in
// an ignore file are left out, and the packager reports what happened as a
// Result.
//
// A run goes through these states in order:
//
//	Idle -> ResolvingPaths -> Walking -> Filtering -> Writing -> Finalizing -> Succeeded
//
// Any state before Succeeded may instead move to Failed. Before and after
// hooks fire exactly once per run in every case. While the archive is
// written, the source folder is the process working directory. It is
// restored before the after hook runs.
package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/bundle"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
)

// Hook is a callable run before or after packaging. An error is recorded on
// the Result and never changes its Status.
type Hook func(ctx context.Context) error

// Packager runs packaging jobs. It owns an ignore cache that is shared
// across runs; the zero value is not usable, call New.
type Packager struct {
	cache  *ignore.Cache
	before Hook
	after  Hook
}

// New returns a Packager that loads ignore files through cache. A nil cache
// gives the Packager a private one.
func New(cache *ignore.Cache) *Packager {
	if cache == nil {
		cache = ignore.NewCache()
	}
	return &Packager{cache: cache}
}

// OnBefore sets the hook fired at the start of every run, replacing any
// previous one.
func (p *Packager) OnBefore(h Hook) *Packager {
	p.before = h
	return p
}

// OnAfter sets the hook fired at the end of every run, replacing any
// previous one.
func (p *Packager) OnAfter(h Hook) *Packager {
	p.after = h
	return p
}

// Cache returns the ignore cache used by p.
func (p *Packager) Cache() *ignore.Cache { return p.cache }

// Run packages opts.SourceFolder into <OutputDirectory>/<OutputName>.zip.
// The returned Result is never nil.
func (p *Packager) Run(ctx context.Context, opts Options) *Result {
	r := &Result{State: StateIdle}

	p.fire(ctx, "before", p.before, r)
	p.run(ctx, opts, r)
	p.fire(ctx, "after", p.after, r)

	fields := map[string]interface{}{
		"source_folder": r.SourceFolder,
		"archive":       r.ArchivePath,
		"files":         r.FilesWritten,
		"status":        r.Message(),
	}
	if r.Status == StatusFailed {
		fields["failed_in"] = r.FailedIn.String()
		tflog.Error(ctx, "Packaging failed", fields)
	} else {
		tflog.Info(ctx, "Packaging finished", fields)
	}

	return r
}

func (p *Packager) fire(ctx context.Context, name string, h Hook, r *Result) {
	if h == nil {
		return
	}
	tflog.Debug(ctx, "Executing hook", map[string]interface{}{"hook": name})
	if err := h(ctx); err != nil {
		err = fmt.Errorf("packager: %s hook: %w", name, err)
		r.HookErrors = append(r.HookErrors, err)
		tflog.Warn(ctx, "Hook failed", map[string]interface{}{
			"hook":  name,
			"error": err.Error(),
		})
	}
}

func (p *Packager) run(ctx context.Context, opts Options, r *Result) {
	r.State = StateResolvingPaths

	wd, err := acquireWorkdir()
	if err != nil {
		r.fail(err)
		return
	}
	defer func() {
		if err := wd.release(); err != nil {
			tflog.Warn(ctx, "Could not restore working directory", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	root, err := resolveSource(opts.SourceFolder)
	if err != nil {
		r.fail(err)
		return
	}
	r.SourceFolder = root

	paths, err := resolvePaths(opts, root)
	if err != nil {
		r.fail(fmt.Errorf("packager: resolve paths: %w", err))
		return
	}
	r.IgnoreFile = paths.ignoreFile
	r.ArchivePath = paths.archivePath

	if err := wd.enter(root); err != nil {
		r.fail(fmt.Errorf("%w: %w", ErrInvalidSourceFolder, err))
		return
	}

	// A before hook may have rewritten the ignore file since it was cached.
	load := p.cache.Load
	if p.before != nil {
		load = p.cache.Rebuild
	}
	matcher, err := load(paths.ignoreFile)
	if err != nil {
		r.fail(err)
		return
	}
	r.Patterns = matcher.Patterns()

	r.State = StateWalking
	rels, err := collect(ctx, root)
	if err != nil {
		r.fail(err)
		return
	}

	r.State = StateFiltering
	r.Decisions = classify(rels, matcher, opts.ExcludeSecrets, paths.archiveRel())
	for _, d := range r.Decisions {
		if d.Included {
			tflog.Debug(ctx, "ADDED", map[string]interface{}{"path": d.RelPath})
		} else {
			tflog.Debug(ctx, "IGNORED", map[string]interface{}{"path": d.RelPath, "reason": d.Reason})
		}
	}
	files := r.Included()

	if opts.RejectExternalSymlinks {
		if err := bundle.ValidateSymlinks(root, files); err != nil {
			var escape *bundle.SymlinkEscapeError
			if errors.As(err, &escape) {
				err = fmt.Errorf("%w: %w", ErrSymlinkEscape, err)
			}
			r.fail(err)
			return
		}
	}

	r.State = StateWriting
	if err := os.Remove(paths.archivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.fail(fmt.Errorf("%w: remove previous archive: %w", ErrArchiveCreationFailed, err))
		return
	}

	aw, err := createArchive(paths.archivePath)
	if err != nil {
		r.fail(fmt.Errorf("%w: %w", ErrArchiveCreationFailed, err))
		return
	}

	var cancelled error
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		// Entries are opened relative to the source folder, which is the
		// current working directory here.
		if err := aw.add(rel, filepath.FromSlash(rel)); err != nil {
			entryErr := &EntryError{RelPath: rel, Err: err}
			r.EntryErrors = append(r.EntryErrors, entryErr)
			tflog.Warn(ctx, "Could not add file to archive", map[string]interface{}{
				"path":  rel,
				"error": err.Error(),
			})
		}
	}

	r.State = StateFinalizing
	closeErr := aw.close()
	r.FilesWritten = aw.written
	tflog.Debug(ctx, "Archive closed", map[string]interface{}{"files": r.FilesWritten})

	switch {
	case cancelled != nil:
		r.State = StateWriting
		r.fail(fmt.Errorf("packager: run cancelled: %w", cancelled))
	case closeErr != nil:
		r.fail(fmt.Errorf("%w: close %q: %w", ErrArchiveCreationFailed, paths.archivePath, closeErr))
	case r.FilesWritten != len(files):
		errs := []error{fmt.Errorf("packager: archive incomplete: wrote %d of %d files: %w",
			r.FilesWritten, len(files), ErrEntryWriteFailed)}
		for _, e := range r.EntryErrors {
			errs = append(errs, e)
		}
		r.fail(errors.Join(errs...))
	default:
		r.State = StateSucceeded
		r.Status = StatusSucceeded
	}
}
