package packager

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSourceFolder is returned when the source folder is missing,
	// is not a directory, or cannot be entered.
	ErrInvalidSourceFolder = errors.New("packager: invalid source folder")

	// ErrArchiveCreationFailed is returned when the archive container cannot
	// be created or finalized at the destination path.
	ErrArchiveCreationFailed = errors.New("packager: archive creation failed")

	// ErrEntryWriteFailed matches every *EntryError and the incomplete-archive
	// failure that follows them.
	ErrEntryWriteFailed = errors.New("packager: entry write failed")

	// ErrSymlinkEscape is returned when RejectExternalSymlinks is set and an
	// included symlink resolves outside the source folder.
	ErrSymlinkEscape = errors.New("packager: symlink escapes source folder")
)

// EntryError records a single file that could not be added to the archive.
// The run continues past it.
type EntryError struct {
	RelPath string
	Err     error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("packager: add %q: %v", e.RelPath, e.Err)
}

func (e *EntryError) Unwrap() []error {
	return []error{ErrEntryWriteFailed, e.Err}
}
