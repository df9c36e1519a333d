package target

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// azureTarget stores objects as block blobs in an Azure Storage container,
// authenticating with the default Azure credential chain.
type azureTarget struct {
	keyspace
	client          *azblob.Client
	containerName   string
	encryptionScope string
	name            string
}

func newAzureTarget(cfg Config) (Target, error) {
	if cfg.StorageAccount == "" || cfg.ContainerName == "" {
		return nil, errors.New("storage_account and container_name are required")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.StorageAccount)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure blob client: %w", err)
	}

	return &azureTarget{
		keyspace:        newKeyspace(cfg.Prefix),
		client:          client,
		containerName:   cfg.ContainerName,
		encryptionScope: cfg.EncryptionScope,
		name:            cfg.Name,
	}, nil
}

func (t *azureTarget) Name() string { return t.name }

func (t *azureTarget) uploadOptions(opts PutOptions) *blockblob.UploadStreamOptions {
	u := &blockblob.UploadStreamOptions{}
	if opts.ContentType != "" {
		u.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &opts.ContentType}
	}
	if len(opts.Metadata) > 0 {
		u.Metadata = make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			u.Metadata[k] = &v
		}
	}
	if t.encryptionScope != "" {
		u.CPKScopeInfo = &blob.CPKScopeInfo{EncryptionScope: &t.encryptionScope}
	}
	return u
}

func (t *azureTarget) upload(ctx context.Context, key string, body io.Reader, u *blockblob.UploadStreamOptions) error {
	_, err := t.client.UploadStream(ctx, t.containerName, t.full(key), body, u)
	if err != nil {
		if isAzurePreconditionFailed(err) {
			return ErrPreconditionFailed
		}
		return fmt.Errorf("azure UploadStream %q: %w", key, err)
	}
	return nil
}

func (t *azureTarget) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	return t.upload(ctx, key, body, t.uploadOptions(opts))
}

func (t *azureTarget) ConditionalPut(ctx context.Context, key string, body io.Reader, cond WriteCondition, opts PutOptions) error {
	u := t.uploadOptions(opts)

	var mod blob.ModifiedAccessConditions
	switch {
	case cond.IfNotExists:
		mod.IfNoneMatch = to(azcore.ETagAny)
	case cond.IfMatch != "":
		mod.IfMatch = to(azcore.ETag(cond.IfMatch))
	}
	u.AccessConditions = &blob.AccessConditions{ModifiedAccessConditions: &mod}

	return t.upload(ctx, key, body, u)
}

func (t *azureTarget) Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	resp, err := t.client.DownloadStream(ctx, t.containerName, t.full(key), nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ObjectMeta{}, ErrNotFound
		}
		return nil, ObjectMeta{}, fmt.Errorf("azure DownloadStream %q: %w", key, err)
	}
	return resp.Body, azureMeta(resp.ETag, resp.ContentLength), nil
}

func (t *azureTarget) Head(ctx context.Context, key string) (ObjectMeta, error) {
	bc := t.client.ServiceClient().NewContainerClient(t.containerName).NewBlobClient(t.full(key))
	props, err := bc.GetProperties(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return ObjectMeta{}, ErrNotFound
		}
		return ObjectMeta{}, fmt.Errorf("azure GetProperties %q: %w", key, err)
	}
	return azureMeta(props.ETag, props.ContentLength), nil
}

func (t *azureTarget) Delete(ctx context.Context, key string) error {
	_, err := t.client.DeleteBlob(ctx, t.containerName, t.full(key), nil)
	if err != nil && !isAzureNotFound(err) {
		return fmt.Errorf("azure DeleteBlob %q: %w", key, err)
	}
	return nil
}

func (t *azureTarget) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	full := t.full(prefix)
	pager := t.client.NewListBlobsFlatPager(t.containerName, &container.ListBlobsFlatOptions{Prefix: &full})

	var out []ObjectInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure ListBlobsFlat prefix %q: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := ObjectInfo{Key: t.logical(*item.Name)}
			if p := item.Properties; p != nil {
				m := azureMeta(p.ETag, p.ContentLength)
				info.ETag, info.Size = m.ETag, m.Size
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func azureMeta(etag *azcore.ETag, size *int64) ObjectMeta {
	var m ObjectMeta
	if etag != nil {
		m.ETag = string(*etag)
	}
	if size != nil {
		m.Size = *size
	}
	return m
}

func to[T any](v T) *T { return &v }

func isAzureNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound)
}

func isAzurePreconditionFailed(err error) bool {
	if bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.BlobAlreadyExists) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 412
}
