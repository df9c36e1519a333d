package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/sync/errgroup"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/bundle"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/manifest"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/publishid"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

// Publish runs the commit protocol for one target:
//
//  1. Generate a publication ID
//  2. Clean up a publication staged by a prior failed run
//  3. Upload the archive
//  4. Build and upload manifest.json
//  5. Write the LATEST pointer
//
// The publication is invisible to readers of LATEST until step 5.
func (e *Engine) Publish(ctx context.Context, tgt target.Target, input PublishInput) (*PublishResult, error) {
	if input.Name == "" {
		return nil, errors.New("engine: publish: name is empty")
	}

	id := publishid.New()

	if input.StagedID != "" {
		if err := e.CleanupStaged(ctx, tgt, input.Name, input.StagedID); err != nil {
			tflog.Warn(ctx, "Staged publication cleanup failed", map[string]interface{}{
				"target":         tgt.Name(),
				"publication_id": input.StagedID,
				"error":          err.Error(),
			})
		}
	}

	prefix := publicationPrefix(input.Name, id)

	if err := e.uploadArchive(ctx, tgt, input, prefix); err != nil {
		return nil, fmt.Errorf("engine: upload archive: %w", err)
	}

	manifestJSON, err := e.uploadManifest(ctx, tgt, input, id, prefix)
	if err != nil {
		return nil, fmt.Errorf("engine: upload manifest: %w", err)
	}

	if err := e.writeLatest(ctx, tgt, input, id); err != nil {
		return nil, fmt.Errorf("engine: write LATEST: %w", err)
	}

	tflog.Info(ctx, "Published archive", map[string]interface{}{
		"target":         tgt.Name(),
		"publication_id": id,
		"archive_hash":   input.ArchiveHash,
	})

	return &PublishResult{
		TargetName:    tgt.Name(),
		PublicationID: id,
		ArchiveHash:   input.ArchiveHash,
		ManifestJSON:  manifestJSON,
	}, nil
}

// PublishAll publishes input to every target in parallel. previous maps a
// target name to the publication ID it last held. Results are returned in
// target order. The first failure cancels the remaining publishes; targets
// that already committed keep their new publication.
func (e *Engine) PublishAll(ctx context.Context, targets []target.Target, input PublishInput, previous map[string]string) ([]*PublishResult, error) {
	results := make([]*PublishResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)

	for i, tgt := range targets {
		in := input
		in.PreviousID = previous[tgt.Name()]
		g.Go(func() error {
			res, err := e.Publish(gctx, tgt, in)
			if err != nil {
				return fmt.Errorf("target %q: %w", tgt.Name(), err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) uploadArchive(ctx context.Context, tgt target.Target, input PublishInput, prefix string) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	key := prefix + archiveName(input.Name)
	return target.Upload(ctx, tgt, input.ArchivePath, key, target.PutOptions{
		ContentType: bundle.ContentTypeForFile(key),
		Metadata: map[string]string{
			"archive-hash": input.ArchiveHash,
		},
	})
}

// uploadManifest builds and uploads manifest.json for the publication.
func (e *Engine) uploadManifest(ctx context.Context, tgt target.Target, input PublishInput, id, prefix string) ([]byte, error) {
	info, err := os.Stat(input.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	m := &manifest.Manifest{
		SchemaVersion:   manifest.SchemaVersion,
		ProviderVersion: input.ProviderVersion,
		PublicationID:   id,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
		ArchiveName:     archiveName(input.Name),
		ArchiveHash:     input.ArchiveHash,
		ArchiveSize:     info.Size(),
		SourceFolder:    input.SourceFolder,
		SourceHash:      input.SourceHash,
		Entries:         input.Entries,
	}

	manifestJSON, err := manifest.Marshal(m)
	if err != nil {
		return nil, err
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	if err := tgt.Put(ctx, prefix+manifestFileName, bytes.NewReader(manifestJSON), target.PutOptions{
		ContentType: bundle.ContentTypeManifest,
	}); err != nil {
		return nil, fmt.Errorf("put manifest: %w", err)
	}

	return manifestJSON, nil
}

// writeLatest points LATEST at id. With a known previous publication the
// write only succeeds while LATEST is unchanged since it was read; on a
// first publish it only succeeds if LATEST does not exist yet.
func (e *Engine) writeLatest(ctx context.Context, tgt target.Target, input PublishInput, id string) error {
	key := latestKey(input.Name)
	body := []byte(id)
	opts := target.PutOptions{ContentType: bundle.ContentTypePointer}

	if input.PreviousID == "" {
		return tgt.ConditionalPut(ctx, key, bytes.NewReader(body), target.WriteCondition{IfNotExists: true}, opts)
	}

	meta, err := tgt.Head(ctx, key)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			// LATEST was removed out of band.
			return tgt.ConditionalPut(ctx, key, bytes.NewReader(body), target.WriteCondition{IfNotExists: true}, opts)
		}
		return fmt.Errorf("head LATEST: %w", err)
	}

	return tgt.ConditionalPut(ctx, key, bytes.NewReader(body), target.ConditionFromMeta(meta), opts)
}
