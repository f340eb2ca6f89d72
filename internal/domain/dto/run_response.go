package dto

import (
	"time"

	"github.com/guttosm/stockpulse/internal/domain/models"
)

// RunResponse represents the JSON structure returned by the
// GET /api/v1/runs/latest endpoint.
//
// Fields match the API contract and may differ from internal domain models.
type RunResponse struct {
	ID           int64     `json:"id" example:"42"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	SymbolsTotal int       `json:"symbols_total" example:"3"`
	SymbolsOK    int       `json:"symbols_ok" example:"3"`
	RowsUpserted int       `json:"rows_upserted" example:"300"`
	Status       string    `json:"status" example:"succeeded"`
	Error        string    `json:"error,omitempty"`
}

// RunResponseFrom maps a domain RunReport into the API response shape.
func RunResponseFrom(r *models.RunReport) RunResponse {
	return RunResponse{
		ID:           r.ID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		SymbolsTotal: r.SymbolsTotal,
		SymbolsOK:    r.SymbolsOK,
		RowsUpserted: r.RowsUpserted,
		Status:       r.Status,
		Error:        r.Error,
	}
}
