package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/invsync/backend/internal/application/orchestrator"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/infrastructure/scheduler"
	"github.com/invsync/backend/internal/interfaces/http/dto"
)

// SyncService is the orchestrator surface the handler needs.
type SyncService interface {
	Run(ctx context.Context, trigger syncdomain.TriggerType, sources []syncdomain.Source) (*orchestrator.RunResult, *orchestrator.RunRejection, error)
	ResetStuckRun(ctx context.Context) (syncdomain.LockSnapshot, error)
	Status(ctx context.Context) (syncdomain.LockSnapshot, error)
	Health(ctx context.Context) ([]orchestrator.HealthRow, error)
	History(ctx context.Context, limit int) ([]syncdomain.SyncRun, error)
}

// ScheduleControl is the scheduler surface the handler needs.
type ScheduleControl interface {
	Start(ctx context.Context, cadences scheduler.Cadences) error
	Stop(ctx context.Context) error
	Running() (bool, scheduler.Cadences)
}

// SyncHandler exposes the sync orchestrator over HTTP.
type SyncHandler struct {
	BaseHandler
	service  SyncService
	schedule ScheduleControl
	cadences scheduler.Cadences
}

// NewSyncHandler creates a sync handler. cadences is the configured
// per-source schedule armed by the auto-sync endpoints.
func NewSyncHandler(service SyncService, schedule ScheduleControl, cadences scheduler.Cadences) *SyncHandler {
	return &SyncHandler{service: service, schedule: schedule, cadences: cadences}
}

// RegisterRoutes registers the sync routes.
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	{
		sync.POST("/run", h.RunSync)
		sync.POST("/reset", h.ResetSync)
		sync.GET("/status", h.GetStatus)
		sync.GET("/health", h.GetHealth)
		sync.GET("/runs", h.ListRuns)
		sync.POST("/auto/start", h.StartAuto)
		sync.POST("/auto/stop", h.StopAuto)
		sync.GET("/auto", h.GetAuto)
	}
}

// RunSync triggers a synchronous sync run over the requested sources.
// POST /api/v1/sync/run
func (h *SyncHandler) RunSync(c *gin.Context) {
	// An empty body means all sources.
	var req dto.RunSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	sources := make([]syncdomain.Source, 0, len(req.Sources))
	for _, raw := range req.Sources {
		source, err := syncdomain.ParseSource(raw)
		if err != nil {
			h.BadRequest(c, err.Error())
			return
		}
		sources = append(sources, source)
	}

	result, rejection, err := h.service.Run(c.Request.Context(), syncdomain.TriggerManual, sources)
	if err != nil {
		if rejection != nil {
			h.Error(c, dto.GetHTTPStatus(dto.ErrCodeSyncActive), dto.ErrCodeSyncActive,
				"a sync run is already active")
			return
		}
		h.DomainError(c, err)
		return
	}
	h.Success(c, result)
}

// ResetSync force-clears a stuck run slot.
// POST /api/v1/sync/reset
func (h *SyncHandler) ResetSync(c *gin.Context) {
	before, err := h.service.ResetStuckRun(c.Request.Context())
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, gin.H{
		"previous_state":  before.State,
		"previous_run_id": before.RunID,
	})
}

// GetStatus returns the run slot state.
// GET /api/v1/sync/status
func (h *SyncHandler) GetStatus(c *gin.Context) {
	snap, err := h.service.Status(c.Request.Context())
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, gin.H{
		"state":       snap.State,
		"run_id":      snap.RunID,
		"acquired_at": snap.AcquiredAt,
	})
}

// GetHealth returns every source's sync health with staleness.
// GET /api/v1/sync/health
func (h *SyncHandler) GetHealth(c *gin.Context) {
	rows, err := h.service.Health(c.Request.Context())
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, rows)
}

// ListRuns returns recent runs, newest first.
// GET /api/v1/sync/runs?limit=N
func (h *SyncHandler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	runs, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, runs)
}

// StartAuto arms the configured per-source schedule.
// POST /api/v1/sync/auto/start
func (h *SyncHandler) StartAuto(c *gin.Context) {
	if err := h.schedule.Start(c.Request.Context(), h.cadences); err != nil {
		h.DomainError(c, err)
		return
	}
	running, cadences := h.schedule.Running()
	h.Success(c, autoStatus(running, cadences))
}

// StopAuto disarms the schedule for all sources.
// POST /api/v1/sync/auto/stop
func (h *SyncHandler) StopAuto(c *gin.Context) {
	if err := h.schedule.Stop(c.Request.Context()); err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, autoStatus(false, nil))
}

// GetAuto reports the schedule state.
// GET /api/v1/sync/auto
func (h *SyncHandler) GetAuto(c *gin.Context) {
	running, cadences := h.schedule.Running()
	h.Success(c, autoStatus(running, cadences))
}

func autoStatus(running bool, cadences scheduler.Cadences) gin.H {
	seconds := make(map[string]float64, len(cadences))
	for source, interval := range cadences {
		seconds[source.String()] = interval.Seconds()
	}
	return gin.H{"running": running, "cadence_seconds": seconds}
}
