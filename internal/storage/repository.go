package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
)

const (
	defaultBatchSize   = 200
	defaultMaxRetries  = 3
	defaultBackoffBase = time.Second
)

// BarRepository defines the persistence contract for the ingestion pipeline.
type BarRepository interface {
	// UpsertBarsBatch persists the full aggregated set for one run and
	// returns the number of rows attempted across all chunks.
	UpsertBarsBatch(ctx context.Context, bars []models.PriceBar) (int, error)
	InsertRunReport(ctx context.Context, report models.RunReport) error
	LatestRun(ctx context.Context) (*models.RunReport, error)
}

type barRepository struct {
	db          *sql.DB
	batchSize   int
	maxRetries  int
	backoffBase time.Duration
	log         zerolog.Logger
}

func NewBarRepository(db *sql.DB, cfg config.StoreConfig) BarRepository {
	r := &barRepository{
		db:          db,
		batchSize:   cfg.BatchSize,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		log:         logger.Component("store"),
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxRetries < 1 {
		r.maxRetries = defaultMaxRetries
	}
	if r.backoffBase <= 0 {
		r.backoffBase = defaultBackoffBase
	}
	return r
}

// UpsertBarsBatch writes bars in fixed-size chunks, one bulk
// insert-or-update per chunk. Repeated runs over overlapping date ranges are
// idempotent: an existing (symbol, ts) row has its measurement fields
// overwritten.
//
// A chunk failure after exhausted retries fails the whole call; rows from
// chunks already committed stay committed but are not part of any reported
// total (failure is total for the call).
func (r *barRepository) UpsertBarsBatch(ctx context.Context, bars []models.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	total := 0
	for i := 0; i < len(bars); i += r.batchSize {
		end := min(i+r.batchSize, len(bars))
		chunk := bars[i:end]
		chunkIdx := i/r.batchSize + 1

		if err := r.upsertChunk(ctx, chunk); err != nil {
			return 0, fmt.Errorf("upsert chunk %d (%d rows): %w", chunkIdx, len(chunk), err)
		}
		total += len(chunk)
		r.log.Info().Int("chunk", chunkIdx).Int("rows", len(chunk)).Msg("chunk upserted")
	}

	r.log.Info().Int("rows", total).Int("chunks", (len(bars)+r.batchSize-1)/r.batchSize).Msg("upsert completed")
	return total, nil
}

// upsertChunk attempts one bulk write with a bounded retry loop. Every error
// class gets the same treatment: the backend is a single trusted Postgres, so
// connectivity blips and other failures are retried identically with doubling
// backoff and no jitter.
func (r *barRepository) upsertChunk(ctx context.Context, chunk []models.PriceBar) error {
	query, args := buildUpsert(chunk)

	backoff := retry.WithMaxRetries(uint64(r.maxRetries-1), retry.NewExponential(r.backoffBase))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			r.log.Warn().Int("attempt", attempt).Int("max", r.maxRetries).Err(err).Msg("chunk upsert failed")
			return retry.RetryableError(err)
		}
		return nil
	})
}

// buildUpsert renders a multi-row INSERT ... ON CONFLICT statement for one
// chunk. Eight placeholders per row, in column order.
func buildUpsert(chunk []models.PriceBar) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO stock_data (symbol, ts, open, high, low, close, volume, raw) VALUES `)

	args := make([]any, 0, len(chunk)*8)
	for i, b := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, b.Symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume, rawColumn(b.Raw))
	}

	sb.WriteString(` ON CONFLICT (symbol, ts) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		raw = EXCLUDED.raw`)
	return sb.String(), args
}

// rawColumn stores the original payload verbatim; it is already JSON text by
// construction. An empty raw becomes SQL NULL.
func rawColumn(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// InsertRunReport appends one row to the run log.
func (r *barRepository) InsertRunReport(ctx context.Context, rep models.RunReport) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (started_at, finished_at, symbols_total, symbols_ok, rows_upserted, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rep.StartedAt, rep.FinishedAt, rep.SymbolsTotal, rep.SymbolsOK, rep.RowsUpserted, rep.Status, rep.Error,
	)
	return err
}

// LatestRun returns the most recent run report, or nil when no run has been
// recorded yet.
func (r *barRepository) LatestRun(ctx context.Context) (*models.RunReport, error) {
	var rep models.RunReport
	err := r.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, symbols_total, symbols_ok, rows_upserted, status, error
		FROM ingest_runs
		ORDER BY id DESC
		LIMIT 1`).
		Scan(&rep.ID, &rep.StartedAt, &rep.FinishedAt, &rep.SymbolsTotal, &rep.SymbolsOK, &rep.RowsUpserted, &rep.Status, &rep.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}
