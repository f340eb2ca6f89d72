package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockpulse/internal/domain/dto"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/service"
)

// mockRunServiceRouter implements service.RunService for testing router wiring
type mockRunServiceRouter struct {
	resp *models.RunReport
	err  error
}

func (m *mockRunServiceRouter) Latest(_ context.Context) (*models.RunReport, error) {
	return m.resp, m.err
}

var _ service.RunService = (*mockRunServiceRouter)(nil)

func TestNewRouter_WiringAndMiddlewares(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Provide a service that returns a run so the handler returns 200
	svc := &mockRunServiceRouter{resp: &models.RunReport{
		ID:           7,
		StartedAt:    time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2024, 1, 2, 6, 1, 0, 0, time.UTC),
		SymbolsTotal: 2,
		SymbolsOK:    2,
		RowsUpserted: 200,
		Status:       models.RunSucceeded,
	}}
	h := NewHandler(svc, func() bool { return true })
	r := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/latest", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// Ensure RequestID middleware injected header
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	var out dto.RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if out.ID != 7 || out.RowsUpserted != 200 || out.Status != models.RunSucceeded {
		t.Fatalf("unexpected body: %+v", out)
	}
}

func TestNewRouter_TriggerRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandler(&mockRunServiceRouter{}, func() bool { return true })
	r := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}
