package lifecycle_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shareport/shareport/pkg/shareport"
	"github.com/shareport/shareport/pkg/shareport/lifecycle"
	repomemory "github.com/shareport/shareport/pkg/shareport/repo/memory"
	memorystorage "github.com/shareport/shareport/pkg/shareport/storage/memory"
)

func seedBatch(t *testing.T, repo shareport.MetadataRepository, store shareport.BlobStore, slug string, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	key := "uploads/" + slug + "/001.jpg"
	require.NoError(t, store.Upload(ctx, key, strings.NewReader("jpeg")))
	require.NoError(t, repo.Save(ctx, &shareport.UploadMetadata{
		Slug:      slug,
		CreatedAt: expiresAt.Add(-7 * 24 * time.Hour),
		ExpiresAt: expiresAt,
		Files:     []shareport.FileRecord{{Key: key, Name: "001.jpg", Size: 4}},
	}))
}

func seedOrphan(t *testing.T, store shareport.BlobStore, slug string) {
	t.Helper()
	key := "uploads/" + slug + "/001.jpg"
	require.NoError(t, store.Upload(context.Background(), key, strings.NewReader("jpeg")))
}

func TestSweepExpired(t *testing.T) {
	repo := repomemory.New()
	store := memorystorage.New()
	manager := lifecycle.NewManager(repo, store)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBatch(t, repo, store, "stale", now.Add(-time.Hour))
	seedBatch(t, repo, store, "live", now.Add(24*time.Hour))

	removed, err := manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "stale")
	assert.ErrorIs(t, err, shareport.ErrUploadNotFound)
	keys, err := store.ListKeys(ctx, "uploads/stale/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// The live batch is untouched
	_, err = repo.Get(ctx, "live")
	assert.NoError(t, err)

	// A second pass finds nothing
	removed, err = manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDetectOrphans(t *testing.T) {
	repo := repomemory.New()
	store := memorystorage.New()
	manager := lifecycle.NewManager(repo, store)
	ctx := context.Background()

	seedBatch(t, repo, store, "committed", time.Now().UTC().Add(24*time.Hour))
	seedOrphan(t, store, "zulu-abandoned")
	seedOrphan(t, store, "alpha-abandoned")

	orphans, err := manager.DetectOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha-abandoned", "zulu-abandoned"}, orphans)
}

func TestCleanupOrphan(t *testing.T) {
	repo := repomemory.New()
	store := memorystorage.New()
	manager := lifecycle.NewManager(repo, store)
	ctx := context.Background()

	seedOrphan(t, store, "abandoned")

	require.NoError(t, manager.CleanupOrphan(ctx, "abandoned"))
	keys, err := store.ListKeys(ctx, "uploads/abandoned/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Nothing left to clean
	assert.ErrorIs(t, manager.CleanupOrphan(ctx, "abandoned"), shareport.ErrUploadNotFound)
}

func TestCleanupOrphanRefusesCommittedBatch(t *testing.T) {
	repo := repomemory.New()
	store := memorystorage.New()
	manager := lifecycle.NewManager(repo, store)
	ctx := context.Background()

	// The record was committed after detection; cleanup must refuse
	seedBatch(t, repo, store, "committed", time.Now().UTC().Add(24*time.Hour))

	err := manager.CleanupOrphan(ctx, "committed")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shareport.ErrUploadNotFound)

	keys, err := store.ListKeys(ctx, "uploads/committed/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestSweepOrphansHonorsGrace(t *testing.T) {
	repo := repomemory.New()
	store := memorystorage.New()
	ctx := context.Background()

	seedOrphan(t, store, "fresh-upload")

	// The object was written moments ago; with the clock advanced past the
	// grace window the sweep reclaims it, before that it must not.
	manager := lifecycle.NewManager(repo, store, lifecycle.WithOrphanGrace(time.Hour))

	removed, err := manager.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	later := time.Now().UTC().Add(2 * time.Hour)
	manager = lifecycle.NewManager(repo, store,
		lifecycle.WithOrphanGrace(time.Hour),
		lifecycle.WithClock(func() time.Time { return later }))

	removed, err = manager.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	keys, err := store.ListKeys(ctx, "uploads/fresh-upload/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
