package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invsync/backend/internal/infrastructure/storage"
)

type countingUploads struct {
	mu      sync.Mutex
	sources []string
}

func (c *countingUploads) RecordStagingUpload(_ context.Context, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, source)
}

func newStagingEngine(t *testing.T) (*countingUploads, interface {
	ServeHTTP(http.ResponseWriter, *http.Request)
}) {
	t.Helper()
	store, err := storage.NewLocalStagingStore(t.TempDir())
	require.NoError(t, err)
	uploads := &countingUploads{}
	return uploads, newTestEngine(t, NewStagingHandler(store, uploads))
}

func TestStagingUploadInspectDelete(t *testing.T) {
	uploads, engine := newStagingEngine(t)

	csv := "sku,name,quantity\nSKU-1,Widget,5\n"
	req := httptest.NewRequest(http.MethodPut, "/api/v1/staging/inventory", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"inventory"`)
	assert.Equal(t, []string{"inventory"}, uploads.sources)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/staging/inventory", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/staging/inventory", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Gone after delete.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/staging/inventory", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStagingRejectsUnknownSource(t *testing.T) {
	_, engine := newStagingEngine(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/staging/not-a-source", strings.NewReader("a,b\n1,2\n"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStagingRejectsEmptyUpload(t *testing.T) {
	_, engine := newStagingEngine(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/staging/vendors", strings.NewReader(""))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStagingList(t *testing.T) {
	_, engine := newStagingEngine(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/staging/vendors", strings.NewReader("code,name\nV1,Acme\n"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/staging", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"vendors"`)
}
