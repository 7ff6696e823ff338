package api_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shareport/shareport/pkg/shareport"
	"github.com/shareport/shareport/pkg/shareport/api"
	"github.com/shareport/shareport/pkg/shareport/archive"
	"github.com/shareport/shareport/pkg/shareport/lifecycle"
	"github.com/shareport/shareport/pkg/shareport/ratelimit"
	repomemory "github.com/shareport/shareport/pkg/shareport/repo/memory"
	memorystorage "github.com/shareport/shareport/pkg/shareport/storage/memory"
	"github.com/shareport/shareport/pkg/shareport/usage"
)

var testSecret = []byte("test-secret")

type fixture struct {
	router  chi.Router
	service shareport.Service
	store   shareport.BlobStore
	repo    shareport.MetadataRepository
	usage   *usage.Tracker
}

func newFixture(t *testing.T, downloadsPerMinute int) *fixture {
	t.Helper()

	repo := repomemory.New()
	store := memorystorage.New()
	svc, err := shareport.New(
		shareport.WithRepository(repo),
		shareport.WithBlobStore(store),
	)
	require.NoError(t, err)

	var limiter *ratelimit.Limiter
	if downloadsPerMinute > 0 {
		limiter = ratelimit.New(downloadsPerMinute)
	}

	tracker := usage.New()
	handler := api.NewHandler(api.HandlerConfig{
		Service:     svc,
		Archive:     archive.NewBuilder(store),
		Lifecycle:   lifecycle.NewManager(repo, store),
		Limiter:     limiter,
		Usage:       tracker,
		AdminSecret: testSecret,
	})

	return &fixture{
		router:  handler.Routes(),
		service: svc,
		store:   store,
		repo:    repo,
		usage:   tracker,
	}
}

func (f *fixture) seedBatch(t *testing.T, slug string, files map[string]string) *shareport.UploadMetadata {
	t.Helper()
	ctx := context.Background()

	records := make([]shareport.FileRecord, 0, len(files))
	for name, content := range files {
		key := "uploads/" + slug + "/" + name
		require.NoError(t, f.store.Upload(ctx, key, strings.NewReader(content)))
		records = append(records, shareport.FileRecord{Key: key, Name: name, Size: int64(len(content))})
	}

	meta, err := f.service.CommitUpload(ctx, shareport.CommitUploadRequest{
		Slug:           slug,
		Title:          slug,
		Files:          records,
		RatingsEnabled: true,
	})
	require.NoError(t, err)
	return meta
}

func (f *fixture) seedExpired(t *testing.T, slug string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.repo.Save(context.Background(), &shareport.UploadMetadata{
		Slug:      slug,
		CreatedAt: now.Add(-8 * 24 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
		Files:     []shareport.FileRecord{{Key: "uploads/" + slug + "/001.jpg", Name: "001.jpg"}},
	}))
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func adminReq(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDownloadAll(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{
		"teaser/001.jpg": "one",
		"teaser/002.jpg": "two",
	})

	rec := f.do(httptest.NewRequest("GET", "/download/wedding/all", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "wedding.zip")

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2)

	// Counter and usage were bumped
	meta, err := f.repo.Get(context.Background(), "wedding")
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.Downloads)
	assert.Equal(t, int64(1), f.usage.Current().Downloads)
	assert.Equal(t, int64(6), f.usage.Current().BytesServed)
}

func TestDownloadAllUnknownSlug(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(httptest.NewRequest("GET", "/download/nope/all", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadEndpointsGoneAfterExpiry(t *testing.T) {
	f := newFixture(t, 0)
	f.seedExpired(t, "old-shoot")

	for _, target := range []string{
		"/download/old-shoot/all",
		"/download/old-shoot/folder?path=teaser",
		"/download/old-shoot/file?key=uploads/old-shoot/001.jpg",
	} {
		rec := f.do(httptest.NewRequest("GET", target, nil))
		assert.Equal(t, http.StatusGone, rec.Code, "target %s", target)
	}
}

func TestDownloadFolder(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{
		"teaser/001.jpg":   "one",
		"ceremony/001.jpg": "two",
	})

	rec := f.do(httptest.NewRequest("GET", "/download/wedding/folder?path=teaser", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "001.jpg", zr.File[0].Name)

	meta, err := f.repo.Get(context.Background(), "wedding")
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.Downloads)
}

func TestDownloadFolderMissingPath(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"teaser/001.jpg": "one"})

	rec := f.do(httptest.NewRequest("GET", "/download/wedding/folder", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadFolderUnknownFolder(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"teaser/001.jpg": "one"})

	rec := f.do(httptest.NewRequest("GET", "/download/wedding/folder?path=reception", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadFile(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"teaser/001.jpg": "raw-jpeg-bytes"})

	rec := f.do(httptest.NewRequest("GET", "/download/wedding/file?key=uploads/wedding/teaser/001.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "raw-jpeg-bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "001.jpg")

	meta, err := f.repo.Get(context.Background(), "wedding")
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.Downloads)
}

func TestDownloadFileUnknownKey(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"teaser/001.jpg": "x"})

	rec := f.do(httptest.NewRequest("GET", "/download/wedding/file?key=uploads/wedding/nope.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadRateLimited(t *testing.T) {
	f := newFixture(t, 2)
	f.seedBatch(t, "wedding", map[string]string{"001.jpg": "x"})

	for i := 0; i < 2; i++ {
		rec := f.do(httptest.NewRequest("GET", "/download/wedding/all", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := f.do(httptest.NewRequest("GET", "/download/wedding/all", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Rejected requests never reached download accounting
	meta, err := f.repo.Get(context.Background(), "wedding")
	require.NoError(t, err)
	assert.Equal(t, int64(2), meta.Downloads)
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(httptest.NewRequest("GET", "/admin/uploads", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/admin/uploads", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	badToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/admin/uploads", nil)
	req.Header.Set("Authorization", "Bearer "+badToken)
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPresignedURLAndCommitFlow(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(adminReq(t, "POST", "/admin/presigned-url", map[string]string{
		"slug":      "wedding",
		"file_name": "teaser/001.jpg",
		"file_type": "image/jpeg",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var presigned struct {
		URL string `json:"presigned_url"`
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &presigned))
	assert.Equal(t, "uploads/wedding/teaser/001.jpg", presigned.Key)
	assert.NotEmpty(t, presigned.URL)

	// Client PUT happens out of band; simulate it
	require.NoError(t, f.store.Upload(context.Background(), presigned.Key, strings.NewReader("jpeg")))

	rec = f.do(adminReq(t, "POST", "/admin/save-metadata", map[string]any{
		"slug":  "wedding",
		"title": "Wedding",
		"files": []map[string]any{
			{"key": presigned.Key, "name": "teaser/001.jpg"},
		},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	meta, err := f.repo.Get(context.Background(), "wedding")
	require.NoError(t, err)
	assert.Equal(t, "Wedding", meta.Title)
	require.Len(t, meta.Files, 1)
	assert.Equal(t, int64(4), meta.Files[0].Size)
}

func TestSaveMetadataRejectsUncommittedObjects(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(adminReq(t, "POST", "/admin/save-metadata", map[string]any{
		"slug": "wedding",
		"files": []map[string]any{
			{"key": "uploads/wedding/never-uploaded.jpg", "name": "never-uploaded.jpg"},
		},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThumbnailBypassesExpiry(t *testing.T) {
	f := newFixture(t, 0)
	now := time.Now().UTC()
	key := "uploads/old-shoot/001.jpg"
	require.NoError(t, f.store.Upload(context.Background(), key, strings.NewReader("jpeg")))
	require.NoError(t, f.repo.Save(context.Background(), &shareport.UploadMetadata{
		Slug:      "old-shoot",
		CreatedAt: now.Add(-8 * 24 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
		Files:     []shareport.FileRecord{{Key: key, Name: "001.jpg"}},
	}))

	req := adminReq(t, "GET", "/thumbnail/old-shoot?key="+key, nil)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["url"])
}

func TestOrphanCleanupFlow(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.store.Upload(ctx, "uploads/abandoned/001.jpg", strings.NewReader("x")))

	rec := f.do(adminReq(t, "GET", "/admin/cleanup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, []string{"abandoned"}, listResp["orphans"])

	rec = f.do(adminReq(t, "DELETE", "/admin/cleanup?slug=abandoned", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	keys, err := f.store.ListKeys(ctx, "uploads/abandoned/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Second delete finds nothing
	rec = f.do(adminReq(t, "DELETE", "/admin/cleanup?slug=abandoned", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(adminReq(t, "DELETE", "/admin/cleanup", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUpload(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"001.jpg": "x"})

	rec := f.do(adminReq(t, "DELETE", "/admin/uploads/wedding", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(adminReq(t, "DELETE", "/admin/uploads/wedding", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePreview(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"001.jpg": "x"})

	rec := f.do(adminReq(t, "POST", "/admin/update-preview", map[string]string{
		"slug":              "wedding",
		"preview_image_key": "uploads/wedding/001.jpg",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	meta, err := f.repo.Get(context.Background(), "wedding")
	require.NoError(t, err)
	assert.Equal(t, "uploads/wedding/001.jpg", meta.PreviewImageKey)
}

func TestSetRating(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"001.jpg": "x"})

	payload, err := json.Marshal(map[string]any{
		"key":   "uploads/wedding/001.jpg",
		"liked": true,
	})
	require.NoError(t, err)

	rec := f.do(httptest.NewRequest("POST", "/rating/wedding", bytes.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)

	meta, err := f.repo.Get(context.Background(), "wedding")
	require.NoError(t, err)
	assert.True(t, meta.Ratings["uploads/wedding/001.jpg"])
}

func TestSetRatingGoneAfterExpiry(t *testing.T) {
	f := newFixture(t, 0)
	f.seedExpired(t, "old-shoot")

	payload := []byte(`{"key":"uploads/old-shoot/001.jpg","liked":true}`)
	rec := f.do(httptest.NewRequest("POST", "/rating/old-shoot", bytes.NewReader(payload)))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestUsageEndpoint(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"001.jpg": "four"})

	rec := f.do(httptest.NewRequest("GET", "/download/wedding/all", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(adminReq(t, "GET", "/admin/usage", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats["downloads"])
	assert.Equal(t, int64(4), stats["bytes_served"])
}

func TestSendEmailValidation(t *testing.T) {
	f := newFixture(t, 0)
	f.seedBatch(t, "wedding", map[string]string{"001.jpg": "x"})

	rec := f.do(adminReq(t, "POST", "/admin/send-email", map[string]string{"slug": "wedding"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(adminReq(t, "POST", "/admin/send-email", map[string]string{
		"slug":            "nope",
		"recipient_email": "client@example.com",
	}))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(adminReq(t, "POST", "/admin/send-email", map[string]string{
		"slug":            "wedding",
		"recipient_email": "client@example.com",
		"custom_message":  "Enjoy the photos!",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	meta, err := f.repo.Get(context.Background(), "wedding")
	require.NoError(t, err)
	assert.Equal(t, "Enjoy the photos!", meta.CustomMessage)
}
