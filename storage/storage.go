package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"
)

// MultipartThreshold is the object size, in bytes, above which providers
// that support it switch to multipart uploads.
const MultipartThreshold = 5 * 1024 * 1024

// FileMetadata describes a stored object without its content.
type FileMetadata struct {
	// Key is the full object key.
	Key string `json:"key"`

	// Size is the content length in bytes.
	Size int64 `json:"size"`

	// ContentType is the MIME type recorded at upload time.
	ContentType string `json:"content_type,omitempty"`

	// ETag is the provider's content fingerprint, without surrounding
	// quotes regardless of backend.
	ETag string `json:"etag,omitempty"`

	// LastModified is the provider's modification timestamp.
	LastModified time.Time `json:"last_modified"`

	// Custom holds user-defined metadata key/value pairs.
	Custom map[string]string `json:"custom,omitempty"`
}

// UploadOptions carries optional attributes applied to an upload.
type UploadOptions struct {
	// ContentType sets the MIME type. Empty means the provider detects
	// or defaults it.
	ContentType string

	// Metadata attaches user-defined key/value pairs to the object.
	Metadata map[string]string

	// CacheControl sets the Cache-Control header returned on reads,
	// for providers that serve HTTP.
	CacheControl string
}

// UploadResult reports the outcome of a completed upload.
type UploadResult struct {
	Key         string
	ETag        string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

// UploadItem is one entry in a batch upload.
type UploadItem struct {
	Key  string
	Body io.Reader

	// Options overrides the batch default options when non-nil.
	Options *UploadOptions
}

// ByteRange selects a half-open slice of an object's content.
// End < 0 means "to the end of the object".
type ByteRange struct {
	Start int64
	End   int64
}

// DownloadOptions carries optional attributes applied to a download.
type DownloadOptions struct {
	// Range restricts the download to a byte range when non-nil.
	Range *ByteRange
}

// ListOptions controls listing.
type ListOptions struct {
	// Prefix restricts results to keys beginning with this string.
	Prefix string

	// MaxResults caps the page size. Zero means the provider default.
	MaxResults int

	// ContinuationToken resumes a paginated listing.
	ContinuationToken string
}

// ListResult is one page of object keys.
type ListResult struct {
	Keys              []string
	ContinuationToken string
	IsTruncated       bool
}

// ObjectInfo is one listed object together with its metadata.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListMetadataResult is one page of objects with metadata.
type ListMetadataResult struct {
	Objects           []ObjectInfo
	ContinuationToken string
	IsTruncated       bool
}

// Provider is the contract every storage backend implements. All methods
// honor context cancellation and return errors classified per this
// package's Error type.
type Provider interface {
	// Name identifies the backend ("s3", "memory", "local").
	Name() string

	// Upload stores content under key and returns the result. Providers
	// with multipart support switch strategies at MultipartThreshold.
	Upload(ctx context.Context, key string, body io.Reader, opts *UploadOptions) (*UploadResult, error)

	// UploadBatch uploads items with bounded concurrency. Per-item
	// failures are collected, not fatal; the error is reserved for
	// failures of the batch itself.
	UploadBatch(ctx context.Context, items []UploadItem, defaults *UploadOptions) (*BatchResult, error)

	// Download returns a reader over the object's content. The caller
	// must close it.
	Download(ctx context.Context, key string, opts *DownloadOptions) (io.ReadCloser, error)

	// DownloadBuffer reads the whole object into memory.
	DownloadBuffer(ctx context.Context, key string) ([]byte, error)

	// DownloadWithProgress reads the whole object, emitting a Progress
	// event to fn as each chunk arrives. The final event reports
	// Percentage 100.
	DownloadWithProgress(ctx context.Context, key string, fn ProgressFunc) ([]byte, error)

	// Metadata returns the object's metadata without its content.
	Metadata(ctx context.Context, key string) (*FileMetadata, error)

	// Exists reports whether key refers to a stored object.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteBatch removes keys with bounded concurrency. Per-key
	// failures are collected, not fatal.
	DeleteBatch(ctx context.Context, keys []string) (*DeleteBatchResult, error)

	// List returns one page of keys matching opts.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// ListWithMetadata returns one page of objects with metadata.
	ListWithMetadata(ctx context.Context, opts ListOptions) (*ListMetadataResult, error)

	// Copy duplicates srcKey to dstKey within the backend.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// PublicURL returns a non-expiring URL for the object. It does not
	// verify existence.
	PublicURL(key string) string
}

// Presigner is implemented by providers that can mint expiring signed
// URLs. Callers type-assert on Provider to discover support.
type Presigner interface {
	// SignedURL returns a URL granting read access to key until ttl
	// elapses.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// EscapeKey percent-encodes each path segment of an object key
// individually, so the / separators survive for URL use.
func EscapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
