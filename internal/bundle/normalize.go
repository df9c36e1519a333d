// Package bundle implements the filesystem side of packaging: walking a
// source folder, normalizing discovered paths into archive entry names,
// hashing files, and validating symlinks.
package bundle

import "strings"

// Normalize converts an absolute path under root into the canonical
// forward-slash, root-relative form used for ignore matching and for archive
// entry names. The result never has a leading slash.
func Normalize(absPath, root string) string {
	rel := strings.TrimPrefix(absPath, root)
	rel = strings.ReplaceAll(rel, `\`, "/")
	return strings.TrimPrefix(rel, "/")
}
