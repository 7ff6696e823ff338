package shareport

import (
	"context"
	"time"
)

// Service defines the main interface for the delivery core
type Service interface {
	// Presigned upload flow
	IssueUploadURL(ctx context.Context, req IssueUploadURLRequest) (*PresignedUpload, error)
	CommitUpload(ctx context.Context, req CommitUploadRequest) (*UploadMetadata, error)

	// Record access
	GetUpload(ctx context.Context, slug string) (*UploadMetadata, error)
	GetActiveUpload(ctx context.Context, slug string) (*UploadMetadata, error)
	ListUploads(ctx context.Context) ([]*UploadMetadata, error)
	DeleteUpload(ctx context.Context, slug string) error

	// Signed direct access to one stored object (thumbnails, previews)
	SignedFileURL(ctx context.Context, slug, key string, ttl time.Duration) (string, error)

	// Record mutation
	SetPreviewImage(ctx context.Context, slug, key string) error
	SetRating(ctx context.Context, slug, key string, liked bool) error
	SetRatingsEnabled(ctx context.Context, slug string, enabled bool) error
	SetCustomMessage(ctx context.Context, slug, message string) error

	// Download accounting
	RecordDownload(ctx context.Context, slug string) (int64, error)

	// NotifyDownload informs the notifier about a completed archive
	// download. Failures are logged, never returned.
	NotifyDownload(slug string, fileCount int)

	// NotifyCommit informs the notifier that a batch is ready for the
	// given recipient. Failures are logged, never returned.
	NotifyCommit(meta *UploadMetadata, recipient string)

	// Collaborator access for archive building and lifecycle management
	Blob() BlobStore
	Repository() MetadataRepository
}
