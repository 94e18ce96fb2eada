package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invsync/backend/internal/application/orchestrator"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
	"github.com/invsync/backend/internal/infrastructure/scheduler"
	"github.com/invsync/backend/internal/interfaces/http/middleware"
	"github.com/invsync/backend/internal/interfaces/http/router"
)

type stubSyncService struct {
	result    *orchestrator.RunResult
	rejection *orchestrator.RunRejection
	err       error
	requested []syncdomain.Source
	snapshot  syncdomain.LockSnapshot
	health    []orchestrator.HealthRow
	runs      []syncdomain.SyncRun
	limit     int
}

func (s *stubSyncService) Run(_ context.Context, _ syncdomain.TriggerType, sources []syncdomain.Source) (*orchestrator.RunResult, *orchestrator.RunRejection, error) {
	s.requested = sources
	return s.result, s.rejection, s.err
}

func (s *stubSyncService) ResetStuckRun(context.Context) (syncdomain.LockSnapshot, error) {
	return s.snapshot, nil
}

func (s *stubSyncService) Status(context.Context) (syncdomain.LockSnapshot, error) {
	return s.snapshot, nil
}

func (s *stubSyncService) Health(context.Context) ([]orchestrator.HealthRow, error) {
	return s.health, nil
}

func (s *stubSyncService) History(_ context.Context, limit int) ([]syncdomain.SyncRun, error) {
	s.limit = limit
	return s.runs, nil
}

type stubSchedule struct {
	running  bool
	cadences scheduler.Cadences
}

func (s *stubSchedule) Start(_ context.Context, cadences scheduler.Cadences) error {
	s.running = true
	s.cadences = cadences
	return nil
}

func (s *stubSchedule) Stop(context.Context) error {
	s.running = false
	s.cadences = nil
	return nil
}

func (s *stubSchedule) Running() (bool, scheduler.Cadences) {
	return s.running, s.cadences
}

func newTestEngine(t *testing.T, registrars ...router.RouteRegistrar) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	r, err := router.New(router.DefaultConfig("invsync-test"), zap.NewNop())
	require.NoError(t, err)
	for _, registrar := range registrars {
		r.Register(registrar)
	}
	return r.Setup()
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRunSyncAllSourcesOnEmptyBody(t *testing.T) {
	svc := &stubSyncService{
		result: &orchestrator.RunResult{RunID: uuid.New(), OverallSuccess: true},
	}
	engine := newTestEngine(t, NewSyncHandler(svc, &stubSchedule{}, nil))

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sync/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.requested)

	var envelope struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
}

func TestRunSyncWithSources(t *testing.T) {
	svc := &stubSyncService{result: &orchestrator.RunResult{RunID: uuid.New()}}
	engine := newTestEngine(t, NewSyncHandler(svc, &stubSchedule{}, nil))

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sync/run", `{"sources":["vendors","boms"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []syncdomain.Source{syncdomain.SourceVendors, syncdomain.SourceBOMs}, svc.requested)
}

func TestRunSyncRejectsUnknownSource(t *testing.T) {
	engine := newTestEngine(t, NewSyncHandler(&stubSyncService{}, &stubSchedule{}, nil))

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sync/run", `{"sources":["nonsense"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunSyncActiveRunReturnsConflict(t *testing.T) {
	svc := &stubSyncService{
		rejection: &orchestrator.RunRejection{
			State:      syncdomain.RunStateRunning,
			ActiveRun:  uuid.New(),
			AcquiredAt: time.Now(),
		},
		err: orchestrator.ErrRunActive,
	}
	engine := newTestEngine(t, NewSyncHandler(svc, &stubSchedule{}, nil))

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sync/run", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_SYNC_ACTIVE")
}

func TestResetSyncReportsPreviousState(t *testing.T) {
	runID := uuid.New()
	svc := &stubSyncService{
		snapshot: syncdomain.LockSnapshot{State: syncdomain.RunStateRunning, RunID: runID},
	}
	engine := newTestEngine(t, NewSyncHandler(svc, &stubSchedule{}, nil))

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sync/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), runID.String())
	assert.Contains(t, rec.Body.String(), "running")
}

func TestGetHealth(t *testing.T) {
	svc := &stubSyncService{
		health: []orchestrator.HealthRow{
			{Source: syncdomain.SourceVendors, ItemCount: 9, Stale: true},
		},
	}
	engine := newTestEngine(t, NewSyncHandler(svc, &stubSchedule{}, nil))

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/sync/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_stale":true`)
}

func TestListRunsValidatesLimit(t *testing.T) {
	svc := &stubSyncService{}
	engine := newTestEngine(t, NewSyncHandler(svc, &stubSchedule{}, nil))

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/sync/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/sync/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.limit)
}

func TestAutoStartStop(t *testing.T) {
	schedule := &stubSchedule{}
	cadences := scheduler.Cadences{syncdomain.SourceVendors: time.Hour}
	engine := newTestEngine(t, NewSyncHandler(&stubSyncService{}, schedule, cadences))

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/sync/auto/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, schedule.running)
	assert.Contains(t, rec.Body.String(), `"running":true`)

	rec = doJSON(t, engine, http.MethodPost, "/api/v1/sync/auto/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, schedule.running)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/sync/auto", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)
}
