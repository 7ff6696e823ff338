// Package api exposes the delivery core over HTTP.
//
// Public endpoints stream archives and raw files; the /admin subtree sits
// behind the bearer-token gate and manages upload batches. Failures map
// one-to-one to status codes, with one exception: an archive failure
// after the 200 header was sent can only be signaled by truncating the
// stream, so it is logged server-side and the connection is aborted.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/shareport/shareport/pkg/shareport"
	"github.com/shareport/shareport/pkg/shareport/archive"
	"github.com/shareport/shareport/pkg/shareport/lifecycle"
	"github.com/shareport/shareport/pkg/shareport/ratelimit"
	"github.com/shareport/shareport/pkg/shareport/usage"
)

// HandlerConfig wires the collaborators of the HTTP surface
type HandlerConfig struct {
	Service     shareport.Service
	Archive     *archive.Builder
	Lifecycle   *lifecycle.Manager
	Limiter     *ratelimit.Limiter
	Usage       *usage.Tracker
	AdminSecret []byte
	Logger      *slog.Logger
}

// Handler handles HTTP requests for the delivery core
type Handler struct {
	service   shareport.Service
	archive   *archive.Builder
	lifecycle *lifecycle.Manager
	limiter   *ratelimit.Limiter
	usage     *usage.Tracker
	auth      *AdminAuth
	logger    *slog.Logger
}

// NewHandler creates a new delivery handler
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:   cfg.Service,
		archive:   cfg.Archive,
		lifecycle: cfg.Lifecycle,
		limiter:   cfg.Limiter,
		usage:     cfg.Usage,
		auth:      NewAdminAuth(cfg.AdminSecret),
		logger:    logger,
	}
}

// Routes returns the routes for the delivery surface
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/download/{slug}", func(r chi.Router) {
		if h.limiter != nil {
			r.Use(RateLimit(h.limiter))
		}
		r.Get("/all", h.DownloadAll)
		r.Get("/folder", h.DownloadFolder)
		r.Get("/file", h.DownloadFile)
	})

	r.Post("/rating/{slug}", h.SetRating)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/thumbnail/{slug}", h.Thumbnail)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/presigned-url", h.PresignedURL)
			r.Post("/save-metadata", h.SaveMetadata)
			r.Post("/update-preview", h.UpdatePreview)
			r.Post("/send-email", h.SendEmail)
			r.Get("/cleanup", h.ListOrphans)
			r.Delete("/cleanup", h.CleanupOrphan)
			r.Delete("/uploads/{slug}", h.DeleteUpload)
			r.Get("/uploads", h.ListUploads)
			r.Get("/usage", h.Usage)
		})
	})

	return r
}

// Download endpoints

// DownloadAll streams a zip of every file in the batch
func (h *Handler) DownloadAll(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	meta, err := h.service.GetActiveUpload(r.Context(), slug)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", slug+".zip"))

	if err := h.archive.BuildAll(r.Context(), meta, w); err != nil {
		h.abortStream(r, err)
		return
	}

	h.finishArchiveDownload(r.Context(), meta, meta.TotalSize(), true)
}

// DownloadFolder streams a zip of the files under one folder
func (h *Handler) DownloadFolder(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	folder := strings.Trim(r.URL.Query().Get("path"), "/")
	if folder == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "path query parameter is required"})
		return
	}

	meta, err := h.service.GetActiveUpload(r.Context(), slug)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	subset := meta.FilesInFolder(folder)
	if len(subset) == 0 {
		h.respondError(w, r, shareport.ErrObjectNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", slug+"-"+path.Base(folder)+".zip"))

	if err := h.archive.BuildFolder(r.Context(), meta, folder, w); err != nil {
		h.abortStream(r, err)
		return
	}

	var bytes int64
	for _, f := range subset {
		bytes += f.Size
	}
	h.finishArchiveDownload(r.Context(), meta, bytes, true)
}

// DownloadFile streams one stored object unmodified
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	key := r.URL.Query().Get("key")

	meta, err := h.service.GetActiveUpload(r.Context(), slug)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	body, file, err := h.archive.OpenFile(r.Context(), meta, key)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer body.Close()

	if file.ContentType != "" {
		w.Header().Set("Content-Type", file.ContentType)
	}
	if file.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", file.Size))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(file.Name)))

	if _, err := io.Copy(w, body); err != nil {
		h.abortStream(r, &shareport.ArchiveError{Slug: slug, Key: key, Err: err})
		return
	}

	h.finishArchiveDownload(r.Context(), meta, file.Size, false)
}

// finishArchiveDownload runs the accounting that follows a fully-sent
// response: the download counter, monthly usage, and for whole archives
// the admin notification.
func (h *Handler) finishArchiveDownload(ctx context.Context, meta *shareport.UploadMetadata, bytes int64, notify bool) {
	if _, err := h.service.RecordDownload(ctx, meta.Slug); err != nil {
		h.logger.Error("recording download failed", "slug", meta.Slug, "err", err)
	}
	if h.usage != nil {
		h.usage.RecordDownload(bytes)
	}
	if notify {
		h.service.NotifyDownload(meta.Slug, len(meta.Files))
	}
}

// abortStream handles a failure after response headers were sent. The 200
// cannot be retracted; closing the connection mid-body is the only way to
// make the client see a failed download instead of a short success.
func (h *Handler) abortStream(r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		h.logger.Info("download cancelled by client", "path", r.URL.Path)
		return
	}

	var archiveErr *shareport.ArchiveError
	if errors.As(err, &archiveErr) {
		h.logger.Error("archive stream aborted",
			"slug", archiveErr.Slug, "key", archiveErr.Key, "err", archiveErr.Err)
	} else {
		h.logger.Error("download stream aborted", "path", r.URL.Path, "err", err)
	}

	panic(http.ErrAbortHandler)
}

// Thumbnail returns a short-lived signed GET URL for one file. Admin-only
// and deliberately not expiry-gated so the dashboard can preview expired
// batches.
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	key := r.URL.Query().Get("key")

	url, err := h.service.SignedFileURL(r.Context(), slug, key, 0)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"url": url})
}

// SetRating records a client's like/dislike for one file
func (h *Handler) SetRating(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req struct {
		Key   string `json:"key"`
		Liked bool   `json:"liked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid request body"})
		return
	}

	if _, err := h.service.GetActiveUpload(r.Context(), slug); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.service.SetRating(r.Context(), slug, req.Key, req.Liked); err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]bool{"success": true})
}

// Admin endpoints

// PresignedURLRequest is the request body for issuing an upload URL
type PresignedURLRequest struct {
	Slug     string `json:"slug"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

// PresignedURL issues a presigned PUT for one file of a batch
func (h *Handler) PresignedURL(w http.ResponseWriter, r *http.Request) {
	var req PresignedURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid request body"})
		return
	}

	presigned, err := h.service.IssueUploadURL(r.Context(), shareport.IssueUploadURLRequest{
		Slug:        req.Slug,
		FileName:    req.FileName,
		ContentType: req.FileType,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, presigned)
}

// SaveMetadataRequest is the request body committing an upload batch
type SaveMetadataRequest struct {
	Slug           string                 `json:"slug"`
	Title          string                 `json:"title"`
	Files          []shareport.FileRecord `json:"files"`
	ExpiryDays     int                    `json:"expiry_days"`
	ClientEmail    string                 `json:"client_email"`
	CustomMessage  string                 `json:"custom_message"`
	RatingsEnabled bool                   `json:"ratings_enabled"`
}

// SaveMetadata commits the metadata record for already-uploaded objects
func (h *Handler) SaveMetadata(w http.ResponseWriter, r *http.Request) {
	var req SaveMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid request body"})
		return
	}

	meta, err := h.service.CommitUpload(r.Context(), shareport.CommitUploadRequest{
		Slug:           req.Slug,
		Title:          req.Title,
		Files:          req.Files,
		ExpiryDays:     req.ExpiryDays,
		ClientEmail:    req.ClientEmail,
		CustomMessage:  req.CustomMessage,
		RatingsEnabled: req.RatingsEnabled,
	})
	if err != nil {
		if errors.Is(err, shareport.ErrCommitFailed) {
			h.logger.Error("metadata commit failed", "slug", req.Slug, "err", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "failed to save upload metadata"})
			return
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}

	if meta.ClientEmail != "" {
		h.service.NotifyCommit(meta, meta.ClientEmail)
	}

	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"url":     "/" + meta.Slug,
	})
}

// UpdatePreview selects the gallery's preview image
func (h *Handler) UpdatePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug            string `json:"slug"`
		PreviewImageKey string `json:"preview_image_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.service.SetPreviewImage(r.Context(), req.Slug, req.PreviewImageKey); err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]bool{"success": true})
}

// SendEmail sends the gallery-ready notification to a client
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slug           string `json:"slug"`
		RecipientEmail string `json:"recipient_email"`
		CustomMessage  string `json:"custom_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Slug == "" || req.RecipientEmail == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "slug and recipient_email are required"})
		return
	}

	meta, err := h.service.GetUpload(r.Context(), req.Slug)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if req.CustomMessage != "" && req.CustomMessage != meta.CustomMessage {
		if err := h.service.SetCustomMessage(r.Context(), meta.Slug, req.CustomMessage); err != nil {
			h.respondError(w, r, err)
			return
		}
		meta.CustomMessage = req.CustomMessage
	}

	h.service.NotifyCommit(meta, req.RecipientEmail)

	render.JSON(w, r, map[string]bool{"success": true})
}

// ListOrphans lists slugs with stored objects but no metadata record
func (h *Handler) ListOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := h.lifecycle.DetectOrphans(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if orphans == nil {
		orphans = []string{}
	}
	render.JSON(w, r, map[string][]string{"orphans": orphans})
}

// CleanupOrphan deletes the objects of one orphaned slug
func (h *Handler) CleanupOrphan(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "slug query parameter is required"})
		return
	}

	if err := h.lifecycle.CleanupOrphan(r.Context(), slug); err != nil {
		if errors.Is(err, shareport.ErrUploadNotFound) {
			h.respondError(w, r, shareport.ErrUploadNotFound)
			return
		}
		h.logger.Error("orphan cleanup refused", "slug", slug, "err", err)
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}

	render.JSON(w, r, map[string]bool{"success": true})
}

// DeleteUpload cascade-deletes a batch: objects first, then the record
func (h *Handler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.service.DeleteUpload(r.Context(), slug); err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]bool{"success": true})
}

// ListUploads enumerates all batches for the dashboard, newest first
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.service.ListUploads(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	render.JSON(w, r, uploads)
}

// Usage reports the running month's download statistics
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		render.JSON(w, r, map[string]int64{"downloads": 0, "bytes_served": 0})
		return
	}
	stats := h.usage.Current()
	render.JSON(w, r, map[string]int64{
		"downloads":    stats.Downloads,
		"bytes_served": stats.BytesServed,
	})
}

// respondError maps core errors to status codes
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shareport.ErrUploadNotFound), errors.Is(err, shareport.ErrObjectNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "not found"})
	case errors.Is(err, shareport.ErrUploadExpired):
		render.Status(r, http.StatusGone)
		render.JSON(w, r, map[string]string{"error": "expired"})
	case errors.Is(err, shareport.ErrInvalidSlug):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid slug"})
	case errors.Is(err, shareport.ErrRatingsDisabled):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "ratings are disabled for this gallery"})
	case errors.Is(err, shareport.ErrUnauthorized):
		unauthorized(w, r)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "internal error"})
	}
}
