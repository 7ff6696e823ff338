package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shareport/shareport/pkg/shareport"
)

// Backend is an in-memory implementation of the shareport.BlobStore
// interface. Presigned URLs are synthetic (memory:// scheme) so the full
// issue/commit flow is exercisable in tests without a real store.
type Backend struct {
	mu              sync.RWMutex
	objects         map[string][]byte
	objectsMimeType map[string]string
	updatedAt       map[string]time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects:         make(map[string][]byte),
		objectsMimeType: make(map[string]string),
		updatedAt:       make(map[string]time.Time),
	}
}

var _ shareport.BlobStore = (*Backend)(nil)

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*shareport.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, shareport.ErrObjectNotFound
	}

	return &shareport.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: b.objectsMimeType[objectKey],
		UpdatedAt:   b.updatedAt[objectKey],
	}, nil
}

// GetUploadURL returns a synthetic presigned PUT URL
func (b *Backend) GetUploadURL(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("memory://put/%s?expires=%d", objectKey, time.Now().Add(ttl).Unix()), nil
}

// GetDownloadURL returns a synthetic presigned GET URL
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey, downloadFilename string, ttl time.Duration) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, exists := b.objects[objectKey]; !exists {
		return "", shareport.ErrObjectNotFound
	}
	url := fmt.Sprintf("memory://get/%s?expires=%d", objectKey, time.Now().Add(ttl).Unix())
	if downloadFilename != "" {
		url += "&filename=" + downloadFilename
	}
	return url, nil
}

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = data
	b.updatedAt[objectKey] = time.Now().UTC()
	if _, exists := b.objectsMimeType[objectKey]; !exists {
		b.objectsMimeType[objectKey] = "application/octet-stream"
	}
	return nil
}

// UploadWithParams uploads content with an explicit content type
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params shareport.UploadParams) error {
	if err := b.Upload(ctx, params.ObjectKey, reader); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objectsMimeType[params.ObjectKey] = params.ContentType
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, shareport.ErrObjectNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return shareport.ErrObjectNotFound
	}

	delete(b.objects, objectKey)
	delete(b.objectsMimeType, objectKey)
	delete(b.updatedAt, objectKey)
	return nil
}

// DeleteByPrefix removes every object whose key starts with prefix
func (b *Backend) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := 0
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
			delete(b.objectsMimeType, key)
			delete(b.updatedAt, key)
			deleted++
		}
	}
	return deleted, nil
}

// ListKeys returns every object key starting with prefix, sorted
func (b *Backend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
