package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3Target stores objects in an Amazon S3 bucket. Credentials come from the
// default AWS chain.
type s3Target struct {
	keyspace
	client   *s3.Client
	bucket   string
	kmsKeyID string
	name     string
}

func newS3Target(cfg Config) (Target, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &s3Target{
		keyspace: newKeyspace(cfg.Prefix),
		client:   s3.NewFromConfig(awsCfg),
		bucket:   cfg.Bucket,
		kmsKeyID: cfg.KMSKeyID,
		name:     cfg.Name,
	}, nil
}

func (t *s3Target) Name() string { return t.name }

func (t *s3Target) putInput(key string, body io.Reader, opts PutOptions) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.full(key)),
		Body:   body,
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		in.Metadata = opts.Metadata
	}
	if t.kmsKeyID != "" {
		in.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		in.SSEKMSKeyId = aws.String(t.kmsKeyID)
	}
	return in
}

func (t *s3Target) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	if _, err := t.client.PutObject(ctx, t.putInput(key, body, opts)); err != nil {
		return fmt.Errorf("s3 PutObject %q: %w", key, err)
	}
	return nil
}

func (t *s3Target) ConditionalPut(ctx context.Context, key string, body io.Reader, cond WriteCondition, opts PutOptions) error {
	in := t.putInput(key, body, opts)
	switch {
	case cond.IfNotExists:
		in.IfNoneMatch = aws.String("*")
	case cond.IfMatch != "":
		in.IfMatch = aws.String(cond.IfMatch)
	}

	if _, err := t.client.PutObject(ctx, in); err != nil {
		if s3Status(err) == http.StatusPreconditionFailed {
			return ErrPreconditionFailed
		}
		return fmt.Errorf("s3 conditional PutObject %q: %w", key, err)
	}
	return nil
}

func (t *s3Target) Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.full(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ObjectMeta{}, ErrNotFound
		}
		return nil, ObjectMeta{}, fmt.Errorf("s3 GetObject %q: %w", key, err)
	}
	return out.Body, ObjectMeta{ETag: aws.ToString(out.ETag), Size: aws.ToInt64(out.ContentLength)}, nil
}

func (t *s3Target) Head(ctx context.Context, key string) (ObjectMeta, error) {
	out, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.full(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ObjectMeta{}, ErrNotFound
		}
		return ObjectMeta{}, fmt.Errorf("s3 HeadObject %q: %w", key, err)
	}
	return ObjectMeta{ETag: aws.ToString(out.ETag), Size: aws.ToInt64(out.ContentLength)}, nil
}

func (t *s3Target) Delete(ctx context.Context, key string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.full(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("s3 DeleteObject %q: %w", key, err)
	}
	return nil
}

func (t *s3Target) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo

	pages := s3.NewListObjectsV2Paginator(t.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(t.bucket),
		Prefix: aws.String(t.full(prefix)),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 ListObjectsV2 prefix %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:  t.logical(aws.ToString(obj.Key)),
				Size: aws.ToInt64(obj.Size),
				ETag: aws.ToString(obj.ETag),
			})
		}
	}
	return out, nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf) || s3Status(err) == http.StatusNotFound
}

// s3Status returns the HTTP status code carried by err, or 0.
func s3Status(err error) int {
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
