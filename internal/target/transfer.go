package target

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Upload copies the local file at localPath to key on t.
func Upload(ctx context.Context, t Target, localPath, key string, opts PutOptions) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("upload %q: %w", localPath, err)
	}
	defer f.Close()

	if err := t.Put(ctx, key, f, opts); err != nil {
		return fmt.Errorf("upload %q to %s:%s: %w", localPath, t.Name(), key, err)
	}
	return nil
}

// Download copies key from t to localPath. The file is written to a
// temporary sibling and renamed into place, so localPath is either the old
// content or the complete new content.
func Download(ctx context.Context, t Target, key, localPath string) (ObjectMeta, error) {
	rc, meta, err := t.Get(ctx, key)
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("download %s:%s: %w", t.Name(), key, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*")
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("download %s:%s: %w", t.Name(), key, err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	if _, err := io.Copy(tmp, rc); err != nil {
		cleanup()
		return ObjectMeta{}, fmt.Errorf("download %s:%s: write: %w", t.Name(), key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return ObjectMeta{}, fmt.Errorf("download %s:%s: close: %w", t.Name(), key, err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		os.Remove(tmp.Name())
		return ObjectMeta{}, fmt.Errorf("download %s:%s: rename: %w", t.Name(), key, err)
	}
	return meta, nil
}
