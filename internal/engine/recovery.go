package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/bundle"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/manifest"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

// CleanupStaged deletes every object under a publication prefix. It removes
// partial uploads from a prior failed run.
func (e *Engine) CleanupStaged(ctx context.Context, tgt target.Target, name, stagedID string) error {
	if err := e.deletePublication(ctx, tgt, name, stagedID); err != nil {
		return fmt.Errorf("cleanup staged publication %q: %w", stagedID, err)
	}
	return nil
}

// Refresh reads the current publication of name from a target and reports
// its health and drift.
//
// If deepCheck is true the stored archive is downloaded and its hash
// compared with the manifest.
func (e *Engine) Refresh(ctx context.Context, tgt target.Target, name, expectedHash string, deepCheck bool) (*RefreshResult, error) {
	result := &RefreshResult{
		TargetName: tgt.Name(),
	}

	latestID, err := readLatestID(ctx, tgt, name)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if latestID == "" {
		return result, nil
	}
	result.LatestID = latestID

	prefix := publicationPrefix(name, latestID)

	m, err := readManifest(ctx, tgt, prefix+manifestFileName)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			result.MissingManifest = true
			return result, nil
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	result.Manifest = m

	if expectedHash != "" && m.ArchiveHash != expectedHash {
		result.Drifted = true
	}

	archiveKey := prefix + m.ArchiveName
	if deepCheck {
		ok, err := e.verifyArchive(ctx, tgt, archiveKey, m.ArchiveHash)
		switch {
		case errors.Is(err, target.ErrNotFound):
			result.MissingArchive = true
		case err != nil:
			return nil, fmt.Errorf("refresh: deep check: %w", err)
		default:
			result.Corrupted = !ok
		}
	} else if _, err := tgt.Head(ctx, archiveKey); err != nil {
		if !errors.Is(err, target.ErrNotFound) {
			return nil, fmt.Errorf("refresh: head archive: %w", err)
		}
		result.MissingArchive = true
	}

	result.Healthy = !result.MissingManifest && !result.MissingArchive && !result.Corrupted
	return result, nil
}

// verifyArchive downloads key into a scratch directory and reports whether
// its hash equals want.
func (e *Engine) verifyArchive(ctx context.Context, tgt target.Target, key, want string) (bool, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer e.sem.Release(1)

	dir, err := os.MkdirTemp("", "zipbundle-verify-")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, filepath.Base(key))
	if _, err := target.Download(ctx, tgt, key, local); err != nil {
		return false, err
	}

	got, err := bundle.ComputeFileHash(local)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// Repair re-uploads whichever of the archive and manifest is missing from
// publication id. It does not move LATEST.
func (e *Engine) Repair(ctx context.Context, tgt target.Target, id string, input PublishInput, m *manifest.Manifest) error {
	prefix := publicationPrefix(input.Name, id)

	if _, err := tgt.Head(ctx, prefix+archiveName(input.Name)); err != nil {
		if !errors.Is(err, target.ErrNotFound) {
			return fmt.Errorf("repair: head archive: %w", err)
		}
		if err := e.uploadArchive(ctx, tgt, input, prefix); err != nil {
			return fmt.Errorf("repair: %w", err)
		}
	}

	if _, err := tgt.Head(ctx, prefix+manifestFileName); err != nil {
		if !errors.Is(err, target.ErrNotFound) {
			return fmt.Errorf("repair: head manifest: %w", err)
		}
		data, err := manifest.Marshal(m)
		if err != nil {
			return fmt.Errorf("repair: %w", err)
		}
		if err := tgt.Put(ctx, prefix+manifestFileName, bytes.NewReader(data), target.PutOptions{
			ContentType: bundle.ContentTypeManifest,
		}); err != nil {
			return fmt.Errorf("repair: put manifest: %w", err)
		}
	}

	return nil
}

func readManifest(ctx context.Context, tgt target.Target, key string) (*manifest.Manifest, error) {
	rc, _, err := tgt.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read manifest body: %w", err)
	}
	return manifest.Unmarshal(data)
}
