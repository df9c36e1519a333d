package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcsstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// gcsTarget stores objects in a Google Cloud Storage bucket using
// Application Default Credentials.
type gcsTarget struct {
	keyspace
	client     *gcsstorage.Client
	bucket     string
	kmsKeyName string
	name       string
}

func newGCSTarget(cfg Config) (Target, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	client, err := gcsstorage.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	return &gcsTarget{
		keyspace:   newKeyspace(cfg.Prefix),
		client:     client,
		bucket:     cfg.Bucket,
		kmsKeyName: cfg.KMSKeyName,
		name:       cfg.Name,
	}, nil
}

func (t *gcsTarget) Name() string { return t.name }

func (t *gcsTarget) object(key string) *gcsstorage.ObjectHandle {
	return t.client.Bucket(t.bucket).Object(t.full(key))
}

func (t *gcsTarget) write(ctx context.Context, o *gcsstorage.ObjectHandle, key string, body io.Reader, opts PutOptions) error {
	w := o.NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.Metadata = opts.Metadata
	w.KMSKeyName = t.kmsKeyName

	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if gcsStatus(err) == http.StatusPreconditionFailed {
			return ErrPreconditionFailed
		}
		return fmt.Errorf("gcs close writer %q: %w", key, err)
	}
	return nil
}

func (t *gcsTarget) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	return t.write(ctx, t.object(key), key, body, opts)
}

func (t *gcsTarget) ConditionalPut(ctx context.Context, key string, body io.Reader, cond WriteCondition, opts PutOptions) error {
	o := t.object(key)
	switch {
	case cond.IfNotExists:
		o = o.If(gcsstorage.Conditions{DoesNotExist: true})
	case cond.Generation > 0:
		o = o.If(gcsstorage.Conditions{GenerationMatch: cond.Generation})
	}
	return t.write(ctx, o, key, body, opts)
}

func (t *gcsTarget) Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	r, err := t.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcsstorage.ErrObjectNotExist) {
			return nil, ObjectMeta{}, ErrNotFound
		}
		return nil, ObjectMeta{}, fmt.Errorf("gcs NewReader %q: %w", key, err)
	}
	return r, ObjectMeta{Generation: r.Attrs.Generation, Size: r.Attrs.Size}, nil
}

func (t *gcsTarget) Head(ctx context.Context, key string) (ObjectMeta, error) {
	attrs, err := t.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcsstorage.ErrObjectNotExist) {
			return ObjectMeta{}, ErrNotFound
		}
		return ObjectMeta{}, fmt.Errorf("gcs Attrs %q: %w", key, err)
	}
	return ObjectMeta{ETag: attrs.Etag, Generation: attrs.Generation, Size: attrs.Size}, nil
}

func (t *gcsTarget) Delete(ctx context.Context, key string) error {
	err := t.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcsstorage.ErrObjectNotExist) {
		return fmt.Errorf("gcs Delete %q: %w", key, err)
	}
	return nil
}

func (t *gcsTarget) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := t.client.Bucket(t.bucket).Objects(ctx, &gcsstorage.Query{Prefix: t.full(prefix)})

	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("gcs List prefix %q: %w", prefix, err)
		}
		out = append(out, ObjectInfo{
			Key:  t.logical(attrs.Name),
			Size: attrs.Size,
			ETag: attrs.Etag,
		})
	}
}

// gcsStatus returns the HTTP status code of a googleapi error, or 0.
func gcsStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
