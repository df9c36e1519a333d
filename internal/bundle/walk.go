package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// FileSystemError is returned when a source folder cannot be enumerated.
type FileSystemError struct {
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("bundle: cannot enumerate %q: %v", e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// errNotDir is wrapped in a FileSystemError when the walk root is a file.
var errNotDir = errors.New("not a directory")

// Walk returns a lazy, depth-first sequence of the absolute paths of every
// non-directory entry beneath root. Directories are traversed but never
// yielded, and symlinks are yielded as files without being followed.
//
// Each call starts a fresh walk. Enumeration failures, including a missing or
// non-directory root, are yielded once as a *FileSystemError and end the
// sequence.
func Walk(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		info, err := os.Stat(root)
		if err != nil {
			yield("", &FileSystemError{Path: root, Err: err})
			return
		}
		if !info.IsDir() {
			yield("", &FileSystemError{Path: root, Err: errNotDir})
			return
		}

		stopped := false
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return &FileSystemError{Path: path, Err: err}
			}
			if d.IsDir() {
				return nil
			}
			if !yield(path, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if walkErr != nil && !stopped {
			yield("", walkErr)
		}
	}
}
