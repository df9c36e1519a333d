package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/sync/errgroup"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/publishid"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

// Prune removes old publications beyond the retention limit.
//
// The latest publication is never a candidate. The remaining managed IDs
// are ordered by their timestamp and all but the newest retain are deleted.
// IDs that do not parse are left alone. Returns the IDs that were pruned.
func (e *Engine) Prune(ctx context.Context, tgt target.Target, name, latestID string, managedIDs []string, retain int) (pruned []string, err error) {
	type stamped struct {
		id string
		ts time.Time
	}

	candidates := make([]stamped, 0, len(managedIDs))
	for _, id := range managedIDs {
		if id == latestID {
			continue
		}
		ts, err := publishid.Parse(id)
		if err != nil {
			tflog.Debug(ctx, "Skipping unparseable publication id", map[string]interface{}{
				"publication_id": id,
			})
			continue
		}
		candidates = append(candidates, stamped{id: id, ts: ts})
	}

	if retain < 0 {
		retain = 0
	}
	if len(candidates) <= retain {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ts.Equal(candidates[j].ts) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].ts.Before(candidates[j].ts)
	})

	for _, c := range candidates[:len(candidates)-retain] {
		if err := e.deletePublication(ctx, tgt, name, c.id); err != nil {
			return pruned, fmt.Errorf("prune publication %q: %w", c.id, err)
		}
		pruned = append(pruned, c.id)
	}

	return pruned, nil
}

// deletePublication lists and deletes every object under a publication.
func (e *Engine) deletePublication(ctx context.Context, tgt target.Target, name, id string) error {
	objects, err := tgt.List(ctx, publicationPrefix(name, id))
	if err != nil {
		return fmt.Errorf("list publication %q: %w", id, err)
	}
	return e.deleteObjects(ctx, tgt, objects)
}

// deleteObjects deletes objects in parallel, bounded by the engine's
// semaphore.
func (e *Engine) deleteObjects(ctx context.Context, tgt target.Target, objects []target.ObjectInfo) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, obj := range objects {
		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			if err := tgt.Delete(gctx, obj.Key); err != nil {
				return fmt.Errorf("delete %q: %w", obj.Key, err)
			}
			return nil
		})
	}

	return g.Wait()
}
