package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
	"github.com/guttosm/stockpulse/internal/marketdata"
	"github.com/guttosm/stockpulse/internal/storage"
)

// ErrNoData is the run-level failure raised when not a single symbol yielded
// a usable record. The scheduler surfaces it and retries on the next tick.
var ErrNoData = errors.New("no data fetched for any symbol")

// Fetcher is the slice of the market-data client the pipeline needs.
type Fetcher interface {
	FetchDaily(ctx context.Context, symbol string) (marketdata.RawPayload, error)
}

// Pipeline drives one ingestion run: fetch and normalize each configured
// symbol strictly in order, aggregate all bars, then persist once.
//
// Per-symbol failures are absorbed and logged; the run only fails when no
// symbol produced data or when persistence exhausts its retries.
type Pipeline struct {
	fetcher     Fetcher
	repo        storage.BarRepository
	symbols     []string
	politeDelay time.Duration
	sleep       func(time.Duration) // indirection so tests skip real waits
	log         zerolog.Logger
}

func NewPipeline(fetcher Fetcher, repo storage.BarRepository, cfg config.AlphaVantageConfig) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		repo:        repo,
		symbols:     cfg.Symbols,
		politeDelay: cfg.PoliteDelay,
		sleep:       time.Sleep,
		log:         logger.Component("pipeline"),
	}
}

// Run executes one full ingestion pass. The returned report is always
// non-nil and already recorded in the run log (best effort).
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{
		StartedAt:    time.Now().UTC(),
		SymbolsTotal: len(p.symbols),
	}

	if len(p.symbols) == 0 {
		return p.finish(ctx, report, errors.New("no symbols configured"))
	}

	var all []models.PriceBar
	for i, sym := range p.symbols {
		p.log.Info().Str("symbol", sym).Int("idx", i+1).Int("total", len(p.symbols)).Msg("fetching symbol")

		payload, err := p.fetcher.FetchDaily(ctx, sym)
		switch {
		case err != nil:
			p.log.Warn().Str("symbol", sym).Err(err).Msg("no data for symbol")
		default:
			if bars := marketdata.Normalize(sym, payload); len(bars) > 0 {
				report.SymbolsOK++
				all = append(all, bars...)
				p.log.Info().Str("symbol", sym).Int("bars", len(bars)).Msg("symbol normalized")
			} else {
				p.log.Warn().Str("symbol", sym).Msg("parsed 0 bars")
			}
		}

		// polite pause between upstream calls, not after the last one
		if i < len(p.symbols)-1 {
			p.sleep(p.politeDelay)
		}
	}

	p.log.Info().Int("bars", len(all)).Int("symbols_ok", report.SymbolsOK).Msg("aggregation complete")

	if report.SymbolsOK == 0 {
		return p.finish(ctx, report, ErrNoData)
	}

	count, err := p.repo.UpsertBarsBatch(ctx, all)
	if err != nil {
		return p.finish(ctx, report, fmt.Errorf("persist run batch: %w", err))
	}
	report.RowsUpserted = count
	return p.finish(ctx, report, nil)
}

// finish stamps the report, records it, and returns the run outcome. A run
// log write failure must not mask the outcome itself.
func (p *Pipeline) finish(ctx context.Context, report *models.RunReport, runErr error) (*models.RunReport, error) {
	report.FinishedAt = time.Now().UTC()
	if runErr != nil {
		report.Status = models.RunFailed
		report.Error = runErr.Error()
	} else {
		report.Status = models.RunSucceeded
	}

	if err := p.repo.InsertRunReport(ctx, *report); err != nil {
		p.log.Warn().Err(err).Msg("record run report failed")
	}

	evt := p.log.Info()
	if runErr != nil {
		evt = p.log.Error().Err(runErr)
	}
	evt.Str("status", report.Status).
		Int("symbols_ok", report.SymbolsOK).
		Int("rows", report.RowsUpserted).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("run finished")

	return report, runErr
}
