package shareport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shareport/shareport/pkg/shareport/objectkey"
)

// service implements the Service interface
type service struct {
	repository MetadataRepository
	blob       BlobStore
	notifier   Notifier
	logger     *slog.Logger

	presignPutTTL time.Duration
	presignGetTTL time.Duration
	notifyTimeout time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo MetadataRepository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend for the service
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blob = store
	}
}

// WithNotifier sets the notifier for the service
func WithNotifier(n Notifier) Option {
	return func(s *service) {
		s.notifier = n
	}
}

// WithLogger sets the structured logger for the service
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		s.logger = l
	}
}

// WithPresignPutTTL overrides the lifetime of issued upload URLs
func WithPresignPutTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.presignPutTTL = ttl
	}
}

// WithPresignGetTTL overrides the lifetime of signed file URLs
func WithPresignGetTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.presignGetTTL = ttl
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		presignPutTTL: 15 * time.Minute,
		presignGetTTL: time.Hour,
		notifyTimeout: 10 * time.Second,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blob == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.notifier == nil {
		s.notifier = NewNoopNotifier()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) Blob() BlobStore                { return s.blob }
func (s *service) Repository() MetadataRepository { return s.repository }

// Presigned upload flow

func (s *service) IssueUploadURL(ctx context.Context, req IssueUploadURLRequest) (*PresignedUpload, error) {
	if err := ValidateSlug(req.Slug); err != nil {
		return nil, err
	}

	key, err := objectkey.ForUpload(req.Slug, req.FileName)
	if err != nil {
		return nil, &UploadError{Slug: req.Slug, Op: "issue_upload_url", Err: err}
	}

	url, err := s.blob.GetUploadURL(ctx, key, req.ContentType, s.presignPutTTL)
	if err != nil {
		return nil, &UploadError{Slug: req.Slug, Op: "issue_upload_url", Err: err}
	}

	return &PresignedUpload{
		URL:       url,
		Key:       key,
		ExpiresAt: time.Now().UTC().Add(s.presignPutTTL),
	}, nil
}

func (s *service) CommitUpload(ctx context.Context, req CommitUploadRequest) (*UploadMetadata, error) {
	if err := ValidateSlug(req.Slug); err != nil {
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, &UploadError{Slug: req.Slug, Op: "commit", Err: fmt.Errorf("no files")}
	}

	prefix := objectkey.BatchPrefix(req.Slug)
	files := make([]FileRecord, len(req.Files))
	for i, f := range req.Files {
		if len(f.Key) <= len(prefix) || f.Key[:len(prefix)] != prefix {
			return nil, &UploadError{Slug: req.Slug, Op: "commit",
				Err: fmt.Errorf("key %q outside batch prefix", f.Key)}
		}

		// Every committed key must denote an object physically present in
		// the store at save time.
		meta, err := s.blob.GetObjectMeta(ctx, f.Key)
		if err != nil {
			return nil, &UploadError{Slug: req.Slug, Op: "commit",
				Err: fmt.Errorf("object %s not verifiable: %w", f.Key, err)}
		}
		if f.Size == 0 {
			f.Size = meta.Size
		}
		if f.ContentType == "" {
			f.ContentType = meta.ContentType
		}
		files[i] = f
	}

	expiryDays := req.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = DefaultExpiryDays
	}

	now := time.Now().UTC()
	meta := &UploadMetadata{
		Slug:           req.Slug,
		Title:          req.Title,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(expiryDays) * 24 * time.Hour),
		Files:          files,
		Downloads:      0,
		ClientEmail:    req.ClientEmail,
		CustomMessage:  req.CustomMessage,
		RatingsEnabled: req.RatingsEnabled,
	}

	if err := s.repository.Save(ctx, meta); err != nil {
		// The objects were written before this commit point. Compensate by
		// removing the partial prefix; when that also fails the slug stays
		// behind as an orphan for the lifecycle sweep to reclaim.
		if _, cleanupErr := s.blob.DeleteByPrefix(ctx, prefix); cleanupErr != nil {
			s.logger.Error("compensating cleanup failed, slug left as orphan",
				"slug", req.Slug, "err", cleanupErr)
		} else {
			s.logger.Info("cleaned up objects after failed commit", "slug", req.Slug)
		}
		return nil, &UploadError{Slug: req.Slug, Op: "commit", Err: fmt.Errorf("%w: %v", ErrCommitFailed, err)}
	}

	return meta, nil
}

// Record access

func (s *service) GetUpload(ctx context.Context, slug string) (*UploadMetadata, error) {
	meta, err := s.repository.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *service) GetActiveUpload(ctx context.Context, slug string) (*UploadMetadata, error) {
	meta, err := s.repository.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	if meta.Expired(time.Now().UTC()) {
		return nil, &UploadError{Slug: slug, Op: "get_active", Err: ErrUploadExpired}
	}
	return meta, nil
}

func (s *service) ListUploads(ctx context.Context) ([]*UploadMetadata, error) {
	return s.repository.List(ctx)
}

func (s *service) DeleteUpload(ctx context.Context, slug string) error {
	if _, err := s.repository.Get(ctx, slug); err != nil {
		return err
	}

	// Objects go first. If their deletion fails the record is kept so the
	// batch stays visible and a later delete or sweep can retry; deleting
	// the record first would silently strand the objects.
	if _, err := s.blob.DeleteByPrefix(ctx, objectkey.BatchPrefix(slug)); err != nil {
		return &UploadError{Slug: slug, Op: "delete", Err: err}
	}

	if err := s.repository.Delete(ctx, slug); err != nil {
		return &UploadError{Slug: slug, Op: "delete", Err: err}
	}
	return nil
}

// Signed file access

func (s *service) SignedFileURL(ctx context.Context, slug, key string, ttl time.Duration) (string, error) {
	meta, err := s.repository.Get(ctx, slug)
	if err != nil {
		return "", err
	}

	file := meta.File(key)
	if file == nil {
		return "", &UploadError{Slug: slug, Op: "signed_url", Err: ErrObjectNotFound}
	}

	if ttl <= 0 {
		ttl = s.presignGetTTL
	}
	url, err := s.blob.GetDownloadURL(ctx, key, "", ttl)
	if err != nil {
		return "", &UploadError{Slug: slug, Op: "signed_url", Err: err}
	}
	return url, nil
}

// Record mutation

func (s *service) SetPreviewImage(ctx context.Context, slug, key string) error {
	meta, err := s.repository.Get(ctx, slug)
	if err != nil {
		return err
	}
	if meta.File(key) == nil {
		return &UploadError{Slug: slug, Op: "set_preview", Err: ErrObjectNotFound}
	}
	meta.PreviewImageKey = key
	return s.repository.Save(ctx, meta)
}

func (s *service) SetRating(ctx context.Context, slug, key string, liked bool) error {
	meta, err := s.repository.Get(ctx, slug)
	if err != nil {
		return err
	}
	if !meta.RatingsEnabled {
		return &UploadError{Slug: slug, Op: "set_rating", Err: ErrRatingsDisabled}
	}
	if meta.File(key) == nil {
		return &UploadError{Slug: slug, Op: "set_rating", Err: ErrObjectNotFound}
	}
	if meta.Ratings == nil {
		meta.Ratings = make(map[string]bool)
	}
	meta.Ratings[key] = liked
	return s.repository.Save(ctx, meta)
}

func (s *service) SetRatingsEnabled(ctx context.Context, slug string, enabled bool) error {
	meta, err := s.repository.Get(ctx, slug)
	if err != nil {
		return err
	}
	meta.RatingsEnabled = enabled
	return s.repository.Save(ctx, meta)
}

func (s *service) SetCustomMessage(ctx context.Context, slug, message string) error {
	meta, err := s.repository.Get(ctx, slug)
	if err != nil {
		return err
	}
	meta.CustomMessage = message
	return s.repository.Save(ctx, meta)
}

// Download accounting

func (s *service) RecordDownload(ctx context.Context, slug string) (int64, error) {
	return s.repository.IncrementDownloads(ctx, slug)
}

// Notifications

func (s *service) NotifyDownload(slug string, fileCount int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.DownloadOccurred(ctx, slug, fileCount); err != nil {
			s.logger.Error("download notification failed", "slug", slug, "err", err)
		}
	}()
}

func (s *service) NotifyCommit(meta *UploadMetadata, recipient string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.UploadCommitted(ctx, meta, recipient); err != nil {
			s.logger.Error("commit notification failed", "slug", meta.Slug, "err", err)
		}
	}()
}
