package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shareport/shareport/pkg/shareport"
	"github.com/shareport/shareport/pkg/shareport/repo/memory"
)

func record(slug string, createdAt time.Time) *shareport.UploadMetadata {
	return &shareport.UploadMetadata{
		Slug:      slug,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(7 * 24 * time.Hour),
		Files:     []shareport.FileRecord{{Key: "uploads/" + slug + "/001.jpg", Name: "001.jpg", Size: 10}},
	}
}

func TestSaveAndGet(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, record("wedding", now)))

	got, err := repo.Get(ctx, "wedding")
	require.NoError(t, err)
	assert.Equal(t, "wedding", got.Slug)
	assert.Len(t, got.Files, 1)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, shareport.ErrUploadNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, record("wedding", time.Now().UTC())))

	got, err := repo.Get(ctx, "wedding")
	require.NoError(t, err)
	got.Title = "mutated"
	got.Files[0].Name = "mutated.jpg"

	fresh, err := repo.Get(ctx, "wedding")
	require.NoError(t, err)
	assert.Empty(t, fresh.Title)
	assert.Equal(t, "001.jpg", fresh.Files[0].Name)
}

func TestSaveUpsertKeepsLatest(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, record("wedding", now)))

	updated := record("wedding", now)
	updated.Title = "Wedding Final"
	require.NoError(t, repo.Save(ctx, updated))

	got, err := repo.Get(ctx, "wedding")
	require.NoError(t, err)
	assert.Equal(t, "Wedding Final", got.Title)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestListNewestFirst(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, record("oldest", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Save(ctx, record("newest", now)))
	require.NoError(t, repo.Save(ctx, record("middle", now.Add(-time.Hour))))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "newest", records[0].Slug)
	assert.Equal(t, "middle", records[1].Slug)
	assert.Equal(t, "oldest", records[2].Slug)
}

func TestDelete(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, record("wedding", time.Now().UTC())))
	require.NoError(t, repo.Delete(ctx, "wedding"))

	_, err := repo.Get(ctx, "wedding")
	assert.ErrorIs(t, err, shareport.ErrUploadNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "wedding"), shareport.ErrUploadNotFound)
}

func TestIncrementDownloadsConcurrent(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, record("wedding", time.Now().UTC())))

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementDownloads(ctx, "wedding"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.Get(ctx, "wedding")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.Downloads)
}

func TestIncrementDownloadsUnknownSlug(t *testing.T) {
	repo := memory.New()
	_, err := repo.IncrementDownloads(context.Background(), "nope")
	assert.ErrorIs(t, err, shareport.ErrUploadNotFound)
}

func TestConcurrentSaveAndList(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = repo.Save(ctx, record(fmt.Sprintf("batch-%d", n), time.Now().UTC()))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = repo.List(ctx)
		}()
	}
	wg.Wait()

	records, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}
