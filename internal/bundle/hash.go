package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Every digest this package produces is "sha256:<hex>".
const hashPrefix = "sha256:"

func formatDigest(h hash.Hash) string {
	return hashPrefix + hex.EncodeToString(h.Sum(nil))
}

// ComputeFileHash streams the file at path through SHA-256.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("bundle: hash %s: %w", path, err)
	}
	defer f.Close()
	return hashReader(f)
}

// ComputeFileHashBytes is ComputeFileHash for content already in memory,
// such as an archive entry.
func ComputeFileHashBytes(data []byte) string {
	h := sha256.New()
	h.Write(data)
	return formatDigest(h)
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("bundle: hash: %w", err)
	}
	return formatDigest(h), nil
}

// ComputeSourceHash folds per-entry digests into one. Entries are taken in
// sorted path order, each as "<relpath>\x00<hex>\n", so the result depends
// only on the set of paths and their contents.
func ComputeSourceHash(entries map[string]string) string {
	h := sha256.New()
	for _, rel := range slices.Sorted(maps.Keys(entries)) {
		io.WriteString(h, rel)
		h.Write([]byte{0})
		io.WriteString(h, strings.TrimPrefix(entries[rel], hashPrefix))
		h.Write([]byte{'\n'})
	}
	return formatDigest(h)
}

// HashFiles digests each slash-separated path under root and returns the
// per-entry digests along with their ComputeSourceHash.
func HashFiles(root string, relPaths []string) (map[string]string, string, error) {
	entries := make(map[string]string, len(relPaths))
	for _, rel := range relPaths {
		d, err := ComputeFileHash(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, "", fmt.Errorf("bundle: entry %q: %w", rel, err)
		}
		entries[rel] = d
	}
	return entries, ComputeSourceHash(entries), nil
}
