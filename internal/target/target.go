// Package target abstracts the remote stores an archive can be published to.
// Every backend exposes the same small object API over flat, slash-separated
// keys; the optional per-target prefix is applied transparently.
package target

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Sentinel errors for target operations.
var (
	ErrNotFound           = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed: object was modified by another process")
)

// Supported target types.
const (
	TypeS3     = "s3"
	TypeAzure  = "azure"
	TypeGCS    = "gcs"
	TypeSFTP   = "sftp"
	TypeMemory = "memory"
)

// Types lists every supported target type.
var Types = []string{TypeS3, TypeAzure, TypeGCS, TypeSFTP, TypeMemory}

// PutOptions controls optional behavior for Put and ConditionalPut.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// WriteCondition is the precondition for ConditionalPut. Backends honor the
// fields they support: IfMatch is compared against ETags, Generation against
// GCS generations. With IfNotExists set the other fields are ignored.
type WriteCondition struct {
	IfNotExists bool
	IfMatch     string
	Generation  int64
}

// ConditionFromMeta returns the condition that succeeds only if the object
// described by meta is still current.
func ConditionFromMeta(meta ObjectMeta) WriteCondition {
	return WriteCondition{IfMatch: meta.ETag, Generation: meta.Generation}
}

// ObjectMeta is returned from Get and Head.
type ObjectMeta struct {
	ETag       string
	Generation int64
	Size       int64
}

// ObjectInfo is a single entry returned from List.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// Target is a remote object store.
type Target interface {
	// Put writes an object unconditionally.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error
	// Get retrieves an object. Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error)
	// Head retrieves object metadata without the body.
	Head(ctx context.Context, key string) (ObjectMeta, error)
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all objects under the given prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// ConditionalPut writes an object only if condition holds. Returns
	// ErrPreconditionFailed otherwise.
	ConditionalPut(ctx context.Context, key string, body io.Reader, condition WriteCondition, opts PutOptions) error
	// Name returns the configured target name.
	Name() string
}

// Config holds the configuration used by NewTarget to construct a Target.
type Config struct {
	Name   string
	Type   string
	Prefix string

	// S3 and GCS.
	Bucket     string
	Region     string
	KMSKeyID   string
	KMSKeyName string

	// Azure.
	StorageAccount  string
	ContainerName   string
	EncryptionScope string

	// SFTP.
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string
	HostKey    string

	MaxRetries   int
	RetryBackoff string // "exponential" | "linear"
}

// keyspace maps logical keys to backend keys under an optional prefix.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) full(key string) string { return k.prefix + key }

func (k keyspace) logical(key string) string { return strings.TrimPrefix(key, k.prefix) }
