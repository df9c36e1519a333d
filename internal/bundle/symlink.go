package bundle

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SymlinkEscapeError reports an included symlink whose target lies outside
// the source folder.
type SymlinkEscapeError struct {
	Path   string // slash-separated, relative to the source folder
	Target string // fully resolved target
}

func (e *SymlinkEscapeError) Error() string {
	return fmt.Sprintf("bundle: symlink %q points outside the source folder (%s)", e.Path, e.Target)
}

// ValidateSymlinks returns a *SymlinkEscapeError for the first entry of
// relPaths that is a symlink resolving outside root. Regular files are
// skipped without resolving anything.
func ValidateSymlinks(root string, relPaths []string) error {
	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("bundle: resolve %s: %w", root, err)
	}
	canonicalRoot, err = filepath.Abs(canonicalRoot)
	if err != nil {
		return fmt.Errorf("bundle: resolve %s: %w", root, err)
	}

	for _, rel := range relPaths {
		p := filepath.Join(canonicalRoot, filepath.FromSlash(rel))
		info, err := os.Lstat(p)
		if err != nil {
			return fmt.Errorf("bundle: lstat %q: %w", rel, err)
		}
		if info.Mode().Type() != fs.ModeSymlink {
			continue
		}

		target, err := filepath.EvalSymlinks(p)
		if err != nil {
			return fmt.Errorf("bundle: follow symlink %q: %w", rel, err)
		}
		if !within(canonicalRoot, target) {
			return &SymlinkEscapeError{Path: rel, Target: target}
		}
	}
	return nil
}

// within reports whether p is root or lies beneath it.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !hasParentPrefix(rel))
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
