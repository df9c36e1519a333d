package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

// Destroy removes an archive's publications from a target.
//
//   - Force: delete every object under <name>/.zipbundle/, including
//     publications this resource did not create.
//
//   - otherwise: delete only the managed publications, and delete LATEST
//     only if it currently points at one of them.
//
// Objects outside <name>/.zipbundle/ are never touched.
func (e *Engine) Destroy(ctx context.Context, tgt target.Target, name string, opts DestroyOptions) error {
	if opts.Force {
		return e.forceDestroy(ctx, tgt, name)
	}
	return e.gracefulDestroy(ctx, tgt, name, opts.ManagedIDs)
}

func (e *Engine) forceDestroy(ctx context.Context, tgt target.Target, name string) error {
	prefix := zipbundlePrefix(name)

	objects, err := tgt.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("destroy: list %q: %w", prefix, err)
	}

	if err := e.deleteObjects(ctx, tgt, objects); err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	return nil
}

func (e *Engine) gracefulDestroy(ctx context.Context, tgt target.Target, name string, managedIDs []string) error {
	for _, id := range managedIDs {
		if err := e.deletePublication(ctx, tgt, name, id); err != nil {
			return fmt.Errorf("destroy: delete publication %q: %w", id, err)
		}
	}

	latestID, err := readLatestID(ctx, tgt, name)
	if err != nil {
		return fmt.Errorf("destroy: %w", err)
	}

	if latestID != "" && slices.Contains(managedIDs, latestID) {
		if err := tgt.Delete(ctx, latestKey(name)); err != nil {
			return fmt.Errorf("destroy: delete LATEST: %w", err)
		}
	}

	return nil
}
