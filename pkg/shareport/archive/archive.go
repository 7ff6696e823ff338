// Package archive assembles zip archives on demand from stored objects.
//
// Archives are streamed: entries are compressed straight onto the
// caller-supplied writer in metadata file-list order, while a bounded
// prefetcher opens upcoming object reads ahead of the compressor. Peak
// memory stays at one in-flight entry plus a small number of open read
// handles regardless of archive size, and a stalled consumer stalls the
// whole pipeline.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/shareport/shareport/pkg/shareport"
)

// DefaultPrefetchDepth bounds how many object reads may be opened ahead
// of the entry currently being compressed.
const DefaultPrefetchDepth = 2

// Builder streams zip archives from a blob store
type Builder struct {
	store            shareport.BlobStore
	logger           *slog.Logger
	compressionLevel int
	prefetchDepth    int
}

// Option represents a functional option for configuring the builder
type Option func(*Builder)

// WithCompressionLevel sets the deflate level. flate.BestCompression
// minimizes transfer size at higher CPU cost; lower levels trade ratio
// for throughput on large batches.
func WithCompressionLevel(level int) Option {
	return func(b *Builder) {
		b.compressionLevel = level
	}
}

// WithPrefetchDepth bounds the fetch-ahead window
func WithPrefetchDepth(depth int) Option {
	return func(b *Builder) {
		if depth > 0 {
			b.prefetchDepth = depth
		}
	}
}

// WithLogger sets the structured logger for the builder
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a streaming archive builder over the given store
func NewBuilder(store shareport.BlobStore, options ...Option) *Builder {
	b := &Builder{
		store:            store,
		compressionLevel: flate.BestCompression,
		prefetchDepth:    DefaultPrefetchDepth,
	}
	for _, option := range options {
		option(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// BuildAll streams a zip containing every file of the batch, entries in
// file-list order, entry names equal to the original relative paths.
func (b *Builder) BuildAll(ctx context.Context, meta *shareport.UploadMetadata, w io.Writer) error {
	return b.build(ctx, meta, meta.Files, "", w)
}

// BuildFolder streams a zip of the files under the given folder, with the
// folder prefix stripped so the folder becomes the archive root. Returns
// ErrObjectNotFound when the batch has no files under that folder.
func (b *Builder) BuildFolder(ctx context.Context, meta *shareport.UploadMetadata, folder string, w io.Writer) error {
	folder = strings.Trim(folder, "/")
	subset := meta.FilesInFolder(folder)
	if len(subset) == 0 {
		return &shareport.UploadError{Slug: meta.Slug, Op: "build_folder", Err: shareport.ErrObjectNotFound}
	}
	return b.build(ctx, meta, subset, folder+"/", w)
}

// OpenFile opens one stored object for raw passthrough, no compression.
// The key must belong to the batch.
func (b *Builder) OpenFile(ctx context.Context, meta *shareport.UploadMetadata, key string) (io.ReadCloser, *shareport.FileRecord, error) {
	file := meta.File(key)
	if file == nil {
		return nil, nil, &shareport.UploadError{Slug: meta.Slug, Op: "open_file", Err: shareport.ErrObjectNotFound}
	}

	rc, err := b.store.Download(ctx, key)
	if err != nil {
		return nil, nil, &shareport.UploadError{Slug: meta.Slug, Op: "open_file", Err: err}
	}
	return rc, file, nil
}

// fetched is one prefetched object read, or the error that ended fetching
type fetched struct {
	file shareport.FileRecord
	body io.ReadCloser
	err  error
}

func (b *Builder) build(ctx context.Context, meta *shareport.UploadMetadata, files []shareport.FileRecord, strip string, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The fetch stage runs ahead of the compressor by at most
	// prefetchDepth open reads. Channel order is file-list order, so
	// entries are emitted deterministically no matter how the underlying
	// reads progress.
	fetches := make(chan fetched, b.prefetchDepth)
	go func() {
		defer close(fetches)
		for _, f := range files {
			body, err := b.store.Download(ctx, f.Key)
			select {
			case fetches <- fetched{file: f, body: body, err: err}:
				if err != nil {
					return
				}
			case <-ctx.Done():
				if body != nil {
					body.Close()
				}
				return
			}
		}
	}()

	// On early return, cancel stops the fetcher and the drain releases
	// any reads it already opened.
	defer func() {
		for item := range fetches {
			if item.body != nil {
				item.body.Close()
			}
		}
	}()

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, b.compressionLevel)
	})

	for item := range fetches {
		if item.err != nil {
			return &shareport.ArchiveError{Slug: meta.Slug, Key: item.file.Key, Err: item.err}
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:   strings.TrimPrefix(item.file.Name, strip),
			Method: zip.Deflate,
		})
		if err != nil {
			item.body.Close()
			return &shareport.ArchiveError{Slug: meta.Slug, Key: item.file.Key, Err: err}
		}

		_, copyErr := io.Copy(entry, item.body)
		closeErr := item.body.Close()
		if copyErr != nil {
			return &shareport.ArchiveError{Slug: meta.Slug, Key: item.file.Key, Err: copyErr}
		}
		if closeErr != nil {
			b.logger.Warn("closing object read failed", "slug", meta.Slug, "key", item.file.Key, "err", closeErr)
		}
	}

	if err := ctx.Err(); err != nil {
		return &shareport.ArchiveError{Slug: meta.Slug, Err: err}
	}

	if err := zw.Close(); err != nil {
		return &shareport.ArchiveError{Slug: meta.Slug, Err: fmt.Errorf("finalize zip: %w", err)}
	}
	return nil
}
