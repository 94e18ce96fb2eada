package handler

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/infrastructure/storage"
	"github.com/invsync/backend/internal/interfaces/http/dto"
)

// UploadRecorder counts staged uploads. Satisfied by
// telemetry.SyncMetrics.
type UploadRecorder interface {
	RecordStagingUpload(ctx context.Context, source string)
}

// StagingHandler manages the per-source CSV staging buffers consumed
// by the CSV ingestion path.
type StagingHandler struct {
	BaseHandler
	store   storage.StagingStore
	uploads UploadRecorder
}

// NewStagingHandler creates a staging handler.
func NewStagingHandler(store storage.StagingStore, uploads UploadRecorder) *StagingHandler {
	return &StagingHandler{store: store, uploads: uploads}
}

// RegisterRoutes registers the staging routes.
func (h *StagingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	staging := rg.Group("/staging")
	{
		staging.GET("", h.List)
		staging.PUT("/:source", h.Upload)
		staging.GET("/:source", h.Inspect)
		staging.DELETE("/:source", h.Delete)
	}
}

// List returns every staged buffer.
// GET /api/v1/staging
func (h *StagingHandler) List(c *gin.Context) {
	files, err := h.store.List(c.Request.Context())
	if err != nil {
		h.DomainError(c, err)
		return
	}
	out := make([]dto.StagedFileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, stagedFileResponse(f))
	}
	h.Success(c, out)
}

// Upload stages a CSV buffer for a source, replacing any previous one.
// PUT /api/v1/staging/:source
func (h *StagingHandler) Upload(c *gin.Context) {
	source, ok := h.bindSource(c)
	if !ok {
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "failed to read upload body")
		return
	}
	if len(data) == 0 {
		h.BadRequest(c, "empty CSV upload")
		return
	}

	staged, err := h.store.Put(c.Request.Context(), source.String(), data)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	if h.uploads != nil {
		h.uploads.RecordStagingUpload(c.Request.Context(), source.String())
	}
	h.Created(c, stagedFileResponse(staged))
}

// Inspect returns metadata for one staged buffer.
// GET /api/v1/staging/:source
func (h *StagingHandler) Inspect(c *gin.Context) {
	source, ok := h.bindSource(c)
	if !ok {
		return
	}

	_, staged, err := h.store.Get(c.Request.Context(), source.String())
	if errors.Is(err, storage.ErrNotStaged) {
		h.NotFound(c, "no staged file for source "+source.String())
		return
	}
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, stagedFileResponse(staged))
}

// Delete discards a staged buffer. Deleting an absent buffer succeeds.
// DELETE /api/v1/staging/:source
func (h *StagingHandler) Delete(c *gin.Context) {
	source, ok := h.bindSource(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), source.String()); err != nil {
		h.DomainError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *StagingHandler) bindSource(c *gin.Context) (syncdomain.Source, bool) {
	source, err := syncdomain.ParseSource(c.Param("source"))
	if err != nil {
		h.BadRequest(c, err.Error())
		return "", false
	}
	return source, true
}

func stagedFileResponse(f storage.StagedFile) dto.StagedFileResponse {
	return dto.StagedFileResponse{
		Source:     f.Source,
		Size:       f.Size,
		UploadedAt: f.UploadedAt.UTC().Format(time.RFC3339),
	}
}
