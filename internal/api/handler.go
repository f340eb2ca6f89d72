package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/stockpulse/internal/domain/dto"
	"github.com/guttosm/stockpulse/internal/service"
)

// Handler provides HTTP handlers for the ingestion ops endpoints.
//
// Responsibilities:
//   - Expose the latest recorded ingestion run
//   - Allow triggering an out-of-schedule run
//   - Translate domain results into response DTOs with proper status codes
type Handler struct {
	runs    service.RunService
	trigger func() bool // starts a run; false when one is already in flight
}

// NewHandler constructs a Handler. trigger is typically
// (*scheduler.Scheduler).TriggerNow.
func NewHandler(runs service.RunService, trigger func() bool) *Handler {
	return &Handler{runs: runs, trigger: trigger}
}

// GetLatestRun handles GET /api/v1/runs/latest.
//
// Responses:
//   - 200 OK: the most recent run report.
//   - 404 Not Found: no ingestion run has been recorded yet.
//   - 500 Internal Server Error: repository/database failure.
func (h *Handler) GetLatestRun(c *gin.Context) {
	rep, err := h.runs.Latest(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("failed to load latest run", err))
		return
	}
	if rep == nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse("no ingestion run recorded yet", nil))
		return
	}
	c.JSON(http.StatusOK, dto.RunResponseFrom(rep))
}

// TriggerIngest handles POST /api/v1/ingest.
//
// Responses:
//   - 202 Accepted: a run was started in the background.
//   - 409 Conflict: a run is already in progress.
func (h *Handler) TriggerIngest(c *gin.Context) {
	if h.trigger == nil || !h.trigger() {
		c.JSON(http.StatusConflict, dto.NewErrorResponse("an ingestion run is already in progress", nil))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
