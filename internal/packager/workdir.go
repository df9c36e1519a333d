package packager

import (
	"fmt"
	"os"
	"sync"
)

// workdirMu serializes every section of the process that depends on the
// current working directory. The working directory is process-global, so two
// runs can never hold it at once.
var workdirMu sync.Mutex

// workdir is a scoped acquisition of the process working directory. Release
// restores the directory that was current at acquisition time and must be
// called exactly once, normally via defer.
type workdir struct {
	prev    string
	entered bool
}

func acquireWorkdir() (*workdir, error) {
	workdirMu.Lock()
	prev, err := os.Getwd()
	if err != nil {
		workdirMu.Unlock()
		return nil, fmt.Errorf("packager: get working directory: %w", err)
	}
	return &workdir{prev: prev}, nil
}

func (w *workdir) enter(dir string) error {
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("packager: enter %q: %w", dir, err)
	}
	w.entered = true
	return nil
}

func (w *workdir) release() error {
	defer workdirMu.Unlock()
	if !w.entered {
		return nil
	}
	w.entered = false
	if err := os.Chdir(w.prev); err != nil {
		return fmt.Errorf("packager: restore working directory %q: %w", w.prev, err)
	}
	return nil
}
