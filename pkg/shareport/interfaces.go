package shareport

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// GetUploadURL returns a presigned URL for a direct client PUT of the
	// object. The store does not enforce single use; a re-PUT under the
	// same key within the TTL simply overwrites.
	GetUploadURL(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error)

	// GetDownloadURL returns a presigned URL for a direct client GET.
	// downloadFilename, when non-empty, is sent as the attachment name.
	GetDownloadURL(ctx context.Context, objectKey, downloadFilename string, ttl time.Duration) (string, error)

	// Upload writes content directly, replacing any existing object
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with an explicit content type
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download opens the object for reading. Returns ErrObjectNotFound if
	// the key is absent.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes one object
	Delete(ctx context.Context, objectKey string) error

	// DeleteByPrefix removes every object whose key starts with prefix and
	// returns the number of objects removed
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// ListKeys returns every object key starting with prefix
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// GetObjectMeta retrieves storage-level metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// MetadataRepository defines the interface for upload record persistence.
// Save must be read-after-write consistent for the slug just written.
type MetadataRepository interface {
	Get(ctx context.Context, slug string) (*UploadMetadata, error)
	Save(ctx context.Context, meta *UploadMetadata) error
	Delete(ctx context.Context, slug string) error

	// List returns all records ordered by CreatedAt descending
	List(ctx context.Context) ([]*UploadMetadata, error)

	// IncrementDownloads atomically bumps the download counter and returns
	// the new value. Concurrent increments must never lose updates.
	IncrementDownloads(ctx context.Context, slug string) (int64, error)
}

// Notifier receives fire-and-forget notifications about delivery events.
// Implementations must not block the caller for long and their errors are
// logged, never propagated.
type Notifier interface {
	// DownloadOccurred is fired after a full archive download completed
	DownloadOccurred(ctx context.Context, slug string, fileCount int) error

	// UploadCommitted is fired after metadata was saved for a new batch
	UploadCommitted(ctx context.Context, meta *UploadMetadata, recipient string) error
}

// ObjectMeta contains storage-level metadata about an object
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey   string
	ContentType string
}
