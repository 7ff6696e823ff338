package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shareport/shareport/pkg/shareport"
)

// Repository implements shareport.MetadataRepository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	uploads map[string]*shareport.UploadMetadata
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		uploads: make(map[string]*shareport.UploadMetadata),
	}
}

var _ shareport.MetadataRepository = (*Repository)(nil)

// clone copies a record so callers cannot mutate repository state through
// shared slices or maps.
func clone(meta *shareport.UploadMetadata) *shareport.UploadMetadata {
	c := *meta
	c.Files = append([]shareport.FileRecord(nil), meta.Files...)
	if meta.Ratings != nil {
		c.Ratings = make(map[string]bool, len(meta.Ratings))
		for k, v := range meta.Ratings {
			c.Ratings[k] = v
		}
	}
	return &c
}

func (r *Repository) Get(ctx context.Context, slug string) (*shareport.UploadMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, exists := r.uploads[slug]
	if !exists {
		return nil, shareport.ErrUploadNotFound
	}
	return clone(meta), nil
}

func (r *Repository) Save(ctx context.Context, meta *shareport.UploadMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.uploads[meta.Slug] = clone(meta)
	return nil
}

func (r *Repository) Delete(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.uploads[slug]; !exists {
		return shareport.ErrUploadNotFound
	}
	delete(r.uploads, slug)
	return nil
}

func (r *Repository) List(ctx context.Context) ([]*shareport.UploadMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*shareport.UploadMetadata, 0, len(r.uploads))
	for _, meta := range r.uploads {
		result = append(result, clone(meta))
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// IncrementDownloads bumps the counter under the write lock, so concurrent
// callers never lose updates.
func (r *Repository) IncrementDownloads(ctx context.Context, slug string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, exists := r.uploads[slug]
	if !exists {
		return 0, shareport.ErrUploadNotFound
	}
	meta.Downloads++
	return meta.Downloads, nil
}
