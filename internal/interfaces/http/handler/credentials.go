package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/invsync/backend/internal/application/credentials"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/interfaces/http/dto"
)

// CredentialsHandler manages the external system credentials. Reads
// are always masked; writes probe the candidate before persisting.
type CredentialsHandler struct {
	BaseHandler
	service *credentials.Service
}

// NewCredentialsHandler creates a credentials handler.
func NewCredentialsHandler(service *credentials.Service) *CredentialsHandler {
	return &CredentialsHandler{service: service}
}

// RegisterRoutes registers the credential routes.
func (h *CredentialsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	creds := rg.Group("/credentials")
	{
		creds.GET("", h.Get)
		creds.PUT("", h.Save)
		creds.DELETE("", h.Clear)
		creds.POST("/probe", h.Probe)
	}
}

// Get returns the stored credentials in masked form.
// GET /api/v1/credentials
func (h *CredentialsHandler) Get(c *gin.Context) {
	masked, err := h.service.Get(c.Request.Context())
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, masked)
}

// Save probes and stores new credentials. A failed probe keeps the
// previous credentials and returns the probe outcome.
// PUT /api/v1/credentials
func (h *CredentialsHandler) Save(c *gin.Context) {
	var req dto.SaveCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.service.Save(c.Request.Context(), syncdomain.Credentials{
		APIKey:      req.APIKey,
		APISecret:   req.APISecret,
		AccountPath: req.AccountPath,
		BaseURL:     req.BaseURL,
	})
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, result)
}

// Clear removes the stored credentials.
// DELETE /api/v1/credentials
func (h *CredentialsHandler) Clear(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context()); err != nil {
		h.DomainError(c, err)
		return
	}
	h.NoContent(c)
}

// Probe checks connectivity with the stored credentials.
// POST /api/v1/credentials/probe
func (h *CredentialsHandler) Probe(c *gin.Context) {
	result, err := h.service.Probe(c.Request.Context())
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, result)
}
