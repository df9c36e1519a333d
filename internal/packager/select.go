package packager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/bundle"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
)

// Selection is the outcome of walking and filtering a source folder without
// writing an archive.
type Selection struct {
	SourceFolder string
	IgnoreFile   string
	ArchivePath  string
	Patterns     []string
	Decisions    []Decision
}

// Included returns the relative paths that a run would archive.
func (s *Selection) Included() []string { return included(s.Decisions) }

// Excluded returns the relative paths that a run would drop.
func (s *Selection) Excluded() []string { return excluded(s.Decisions) }

// SourceHash hashes the contents of every included file.
func (s *Selection) SourceHash() (string, error) {
	_, h, err := bundle.HashFiles(s.SourceFolder, s.Included())
	return h, err
}

// Select performs the path resolution, walk and filter steps of a run and
// returns the decisions. Nothing is written and the working directory is not
// changed. A nil cache uses a throwaway one.
func Select(ctx context.Context, cache *ignore.Cache, opts Options) (*Selection, error) {
	if cache == nil {
		cache = ignore.NewCache()
	}

	// A relative SourceFolder is resolved against the cwd, which a
	// concurrent Run may be holding.
	workdirMu.Lock()
	root, err := resolveSource(opts.SourceFolder)
	var paths resolved
	if err == nil {
		paths, err = resolvePaths(opts, root)
		if err != nil {
			err = fmt.Errorf("packager: resolve paths: %w", err)
		}
	}
	workdirMu.Unlock()
	if err != nil {
		return nil, err
	}

	matcher, err := cache.Load(paths.ignoreFile)
	if err != nil {
		return nil, err
	}

	rels, err := collect(ctx, root)
	if err != nil {
		return nil, err
	}

	return &Selection{
		SourceFolder: root,
		IgnoreFile:   paths.ignoreFile,
		ArchivePath:  paths.archivePath,
		Patterns:     matcher.Patterns(),
		Decisions:    classify(rels, matcher, opts.ExcludeSecrets, paths.archiveRel()),
	}, nil
}

// resolveSource returns the canonical absolute path of a source folder.
func resolveSource(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: no source folder given", ErrInvalidSourceFolder)
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSourceFolder, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSourceFolder, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSourceFolder, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q is not a directory", ErrInvalidSourceFolder, canonical)
	}

	return canonical, nil
}

// archiveRel returns the archive path relative to the source folder, or ""
// when the archive is written elsewhere.
func (r resolved) archiveRel() string {
	if !strings.HasPrefix(r.archivePath, r.root+string(filepath.Separator)) {
		return ""
	}
	return bundle.Normalize(r.archivePath, r.root)
}

// collect walks root and returns every file as a normalized relative path.
func collect(ctx context.Context, root string) ([]string, error) {
	var rels []string
	for p, err := range bundle.Walk(root) {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rels = append(rels, bundle.Normalize(p, root))
	}
	return rels, nil
}

func classify(rels []string, m *ignore.Matcher, excludeSecrets bool, archiveRel string) []Decision {
	ds := make([]Decision, 0, len(rels))
	for _, rel := range rels {
		d := Decision{RelPath: rel, Included: true}
		switch {
		case archiveRel != "" && rel == archiveRel:
			d.Included, d.Reason = false, ReasonOutputArchive
		case m.Match(rel):
			d.Included, d.Reason = false, ReasonIgnoreFile
		case excludeSecrets && ignore.SecretRules(rel):
			d.Included, d.Reason = false, ReasonSecret
		}
		ds = append(ds, d)
	}
	return ds
}
