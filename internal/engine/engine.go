// Package engine publishes packaged archives to remote targets. Each
// publication lands under its own ID and becomes current only when the
// LATEST pointer is rewritten, so readers never observe a half-written
// publication.
//
// Layout on a target, for an archive named "site":
//
//	site/.zipbundle/LATEST
//	site/.zipbundle/publications/<id>/site.zip
//	site/.zipbundle/publications/<id>/manifest.json
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/manifest"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/packager"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

const manifestFileName = "manifest.json"

// Engine runs publish, refresh, prune, and destroy operations against
// targets. The semaphore bounds concurrent object operations across every
// target the engine touches.
type Engine struct {
	sem *semaphore.Weighted
}

// New creates a new Engine with the given concurrency semaphore.
func New(sem *semaphore.Weighted) *Engine {
	return &Engine{sem: sem}
}

// PublishInput holds everything needed to publish one archive.
type PublishInput struct {
	// Name is the archive base name without extension. It is also the
	// top-level key prefix on the target.
	Name        string
	ArchivePath string

	// ArchiveHash is the "sha256:<hex>" digest of the archive file.
	ArchiveHash string
	// Entries maps entry names to their content hashes.
	Entries map[string]string

	SourceFolder    string
	SourceHash      string
	ProviderVersion string

	PreviousID string // for the conditional LATEST write
	StagedID   string // from a prior failed run, to clean up
}

// PublishResult holds the outcome of publishing to a single target.
type PublishResult struct {
	TargetName    string
	PublicationID string
	ArchiveHash   string
	ManifestJSON  []byte
}

// RefreshResult holds the state read from a target.
type RefreshResult struct {
	TargetName      string
	LatestID        string
	Manifest        *manifest.Manifest
	Healthy         bool // manifest and archive present and intact
	Drifted         bool // archive_hash mismatch
	MissingManifest bool
	MissingArchive  bool
	Corrupted       bool // deep check only: stored archive does not match its manifest
}

// DestroyOptions controls how an archive is removed from a target.
type DestroyOptions struct {
	Force      bool
	ManagedIDs []string // publications created by this resource
}

// archiveName returns the file name of the archive object.
func archiveName(name string) string {
	return name + packager.ArchiveExtension
}

// latestKey returns the object key for the LATEST pointer.
func latestKey(name string) string {
	return name + "/.zipbundle/LATEST"
}

// publicationPrefix returns the object key prefix for a publication.
func publicationPrefix(name, id string) string {
	return name + "/.zipbundle/publications/" + id + "/"
}

// zipbundlePrefix returns the prefix for every object the engine manages
// under name.
func zipbundlePrefix(name string) string {
	return name + "/.zipbundle/"
}

// readLatestID reads the LATEST pointer. It returns "" and a nil error when
// the pointer does not exist.
func readLatestID(ctx context.Context, tgt target.Target, name string) (string, error) {
	rc, _, err := tgt.Get(ctx, latestKey(name))
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read LATEST: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read LATEST body: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}
