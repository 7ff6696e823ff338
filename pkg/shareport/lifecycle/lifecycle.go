// Package lifecycle reconciles the two independently-failing halves of an
// upload batch: the objects in the blob store and the metadata record
// describing them. It expires old batches and reclaims orphaned objects
// left behind by commits that never completed.
//
// Both sweeps are idempotent reconciliation passes meant to run on a
// timer, not one-shot fixes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shareport/shareport/pkg/shareport"
	"github.com/shareport/shareport/pkg/shareport/objectkey"
)

// DefaultOrphanGrace is how old a slug's newest object must be before the
// orphan sweep may reclaim it. Objects younger than this may belong to an
// upload whose commit is still in flight.
const DefaultOrphanGrace = 24 * time.Hour

// Manager runs expiry and orphan reconciliation over a repository and a
// blob store
type Manager struct {
	repo   shareport.MetadataRepository
	store  shareport.BlobStore
	logger *slog.Logger

	orphanGrace time.Duration
	now         func() time.Time
}

// Option represents a functional option for configuring the manager
type Option func(*Manager)

// WithLogger sets the structured logger for the manager
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithOrphanGrace overrides the minimum age for orphan reclamation
func WithOrphanGrace(grace time.Duration) Option {
	return func(m *Manager) {
		m.orphanGrace = grace
	}
}

// WithClock sets an injectable clock for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a lifecycle manager
func NewManager(repo shareport.MetadataRepository, store shareport.BlobStore, options ...Option) *Manager {
	m := &Manager{
		repo:        repo,
		store:       store,
		orphanGrace: DefaultOrphanGrace,
		now:         time.Now,
	}
	for _, option := range options {
		option(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// SweepExpired cascade-deletes every batch past its expiry: objects first,
// then the record. When object deletion fails the record is kept so the
// candidate is retried on the next sweep; the inverse order could strand
// objects with no record pointing at them.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	records, err := m.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list uploads: %w", err)
	}

	now := m.now().UTC()
	removed := 0
	for _, meta := range records {
		if !meta.Expired(now) {
			continue
		}

		if _, err := m.store.DeleteByPrefix(ctx, objectkey.BatchPrefix(meta.Slug)); err != nil {
			m.logger.Error("expiry sweep: object deletion failed, keeping record",
				"slug", meta.Slug, "err", err)
			continue
		}

		if err := m.repo.Delete(ctx, meta.Slug); err != nil && !errors.Is(err, shareport.ErrUploadNotFound) {
			m.logger.Error("expiry sweep: record deletion failed", "slug", meta.Slug, "err", err)
			continue
		}

		m.logger.Info("expired upload removed", "slug", meta.Slug, "expired_at", meta.ExpiresAt)
		removed++
	}

	return removed, nil
}

// DetectOrphans returns the slugs that have objects under the upload
// namespace but no metadata record.
func (m *Manager) DetectOrphans(ctx context.Context) ([]string, error) {
	keys, err := m.store.ListKeys(ctx, objectkey.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	slugs := make(map[string]struct{})
	for _, key := range keys {
		if slug := objectkey.SlugFromKey(key); slug != "" {
			slugs[slug] = struct{}{}
		}
	}

	var orphans []string
	for slug := range slugs {
		_, err := m.repo.Get(ctx, slug)
		if errors.Is(err, shareport.ErrUploadNotFound) {
			orphans = append(orphans, slug)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check metadata for %s: %w", slug, err)
		}
	}

	sort.Strings(orphans)
	return orphans, nil
}

// CleanupOrphan deletes the objects of one orphaned slug. Metadata absence
// is re-verified immediately before deletion: a record may have been
// committed between detection and cleanup, and objects belonging to a
// live record must never be removed. Returns ErrUploadNotFound when the
// slug has no objects.
func (m *Manager) CleanupOrphan(ctx context.Context, slug string) error {
	_, err := m.repo.Get(ctx, slug)
	if err == nil {
		return fmt.Errorf("slug %s has a metadata record, refusing cleanup", slug)
	}
	if !errors.Is(err, shareport.ErrUploadNotFound) {
		return fmt.Errorf("check metadata for %s: %w", slug, err)
	}

	deleted, err := m.store.DeleteByPrefix(ctx, objectkey.BatchPrefix(slug))
	if err != nil {
		return fmt.Errorf("delete orphan objects for %s: %w", slug, err)
	}
	if deleted == 0 {
		return shareport.ErrUploadNotFound
	}

	m.logger.Info("orphan cleaned up", "slug", slug, "objects", deleted)
	return nil
}

// SweepOrphans reclaims orphans whose newest object is older than the
// grace window. Younger orphans are skipped: they may be uploads whose
// commit has not happened yet.
func (m *Manager) SweepOrphans(ctx context.Context) (int, error) {
	orphans, err := m.DetectOrphans(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().UTC().Add(-m.orphanGrace)
	removed := 0
	for _, slug := range orphans {
		young, err := m.newerThan(ctx, slug, cutoff)
		if err != nil {
			m.logger.Error("orphan sweep: age check failed", "slug", slug, "err", err)
			continue
		}
		if young {
			continue
		}

		if err := m.CleanupOrphan(ctx, slug); err != nil {
			if !errors.Is(err, shareport.ErrUploadNotFound) {
				m.logger.Error("orphan sweep: cleanup failed", "slug", slug, "err", err)
			}
			continue
		}
		removed++
	}

	return removed, nil
}

// newerThan reports whether any object of the slug was modified after the
// cutoff instant.
func (m *Manager) newerThan(ctx context.Context, slug string, cutoff time.Time) (bool, error) {
	keys, err := m.store.ListKeys(ctx, objectkey.BatchPrefix(slug))
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		meta, err := m.store.GetObjectMeta(ctx, key)
		if errors.Is(err, shareport.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if meta.UpdatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// Run executes both sweeps on the given interval until the context is
// cancelled. One pass runs immediately on start.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.pass(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) pass(ctx context.Context) {
	if expired, err := m.SweepExpired(ctx); err != nil {
		m.logger.Error("expiry sweep failed", "err", err)
	} else if expired > 0 {
		m.logger.Info("expiry sweep complete", "removed", expired)
	}

	if orphans, err := m.SweepOrphans(ctx); err != nil {
		m.logger.Error("orphan sweep failed", "err", err)
	} else if orphans > 0 {
		m.logger.Info("orphan sweep complete", "removed", orphans)
	}
}
