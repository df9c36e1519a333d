package packager

import (
	"path/filepath"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
)

// ArchiveExtension is appended to the output name to form the archive file.
const ArchiveExtension = ".zip"

// Options configures a single packaging run. The zero value of every field
// except SourceFolder selects a default.
type Options struct {
	// SourceFolder is the directory to package. Required.
	SourceFolder string

	// IgnoreFile is the path to the ignore file. Defaults to
	// <SourceFolder>/.zipignore. A missing file excludes nothing.
	IgnoreFile string

	// OutputName is the archive base name without extension. Defaults to the
	// base name of the resolved source folder.
	OutputName string

	// OutputDirectory receives the archive. Defaults to the source folder.
	OutputDirectory string

	// ExcludeSecrets additionally drops credential files such as .env and
	// private keys.
	ExcludeSecrets bool

	// RejectExternalSymlinks fails the run when an included symlink
	// resolves outside the source folder.
	RejectExternalSymlinks bool
}

// resolved holds the absolute paths derived from Options for one run.
type resolved struct {
	root        string
	ignoreFile  string
	archivePath string
}

// resolvePaths derives the absolute ignore file and archive paths. Relative
// IgnoreFile and OutputDirectory values are taken relative to root, the
// canonical source folder, as if resolved after entering it.
func resolvePaths(opts Options, root string) (resolved, error) {
	r := resolved{root: root}

	ignoreFile := opts.IgnoreFile
	if ignoreFile == "" {
		ignoreFile = ignore.DefaultFileName
	}
	r.ignoreFile = underRoot(root, ignoreFile)

	name := opts.OutputName
	if name == "" {
		name = filepath.Base(root)
	}
	outDir := opts.OutputDirectory
	if outDir == "" {
		outDir = root
	}
	r.archivePath = filepath.Join(underRoot(root, outDir), name+ArchiveExtension)

	return r, nil
}

func underRoot(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
