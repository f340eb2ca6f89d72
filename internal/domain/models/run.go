package models

import "time"

// Run statuses recorded in ingest_runs.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunReport summarizes one pipeline invocation: how many symbols were
// attempted, how many yielded usable bars, and how many rows were upserted.
// One row is written per run, successful or not.
type RunReport struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   time.Time
	SymbolsTotal int
	SymbolsOK    int
	RowsUpserted int
	Status       string
	Error        string
}
