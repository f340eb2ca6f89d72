package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/app"
	"github.com/guttosm/stockpulse/internal/ingestion"
	"github.com/guttosm/stockpulse/internal/logger"
	"github.com/guttosm/stockpulse/internal/marketdata"
	"github.com/guttosm/stockpulse/internal/scheduler"
	"github.com/guttosm/stockpulse/internal/storage"
)

// runServe runs the ops HTTP server and the cron scheduler until an OS
// interrupt signal (SIGINT, SIGTERM) arrives or the server fails.
//
// Behavior:
//   - Starts the scheduler (if provided) and the HTTP server.
//   - On signal, stops the scheduler, shuts the server down with a 10s
//     deadline, then runs cleanup.
//
// Parameters:
//   - ctx: base context; signal handling is layered on top of it.
//   - router: the configured HTTP handler (Gin engine).
//   - sched: the ingestion scheduler; may be nil in tests.
//   - cleanup: callback releasing resources (e.g., DB connections).
//   - port: TCP port to listen on.
func runServe(ctx context.Context, router http.Handler, sched *scheduler.Scheduler, cleanup func(), port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sched != nil {
		sched.Start()
	}

	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		logger.L().Info().Str("port", port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.L().Info().Msg("shutting down")

		if sched != nil {
			sched.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}

		if cleanup != nil {
			cleanup()
		}
		logger.L().Info().Msg("server exited gracefully")
		return nil
	})

	return g.Wait()
}

// runIngest executes a single ingestion run against the configured symbols
// and exits. Used by cron-less deployments and for backfilling by hand.
func runIngest(ctx context.Context) error {
	cfg := config.AppConfig

	db, err := app.InitPostgres(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := app.RunMigrations(db); err != nil {
		return err
	}

	repo := storage.NewBarRepository(db, cfg.Store)
	fetcher := marketdata.NewFetcher(cfg.AlphaVantage)
	pipeline := ingestion.NewPipeline(fetcher, repo, cfg.AlphaVantage)

	report, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	logger.L().Info().
		Int("symbols_ok", report.SymbolsOK).
		Int("rows_upserted", report.RowsUpserted).
		Msg("ingestion completed successfully")
	return nil
}

// main is the entry point of the stockpulse application.
//
// Modes (selected via --mode flag):
//   - ingest: Runs one fetch-normalize-persist cycle for the configured symbols, then exits.
//   - serve:  Starts the ops REST API and the cron scheduler for recurring runs.
//
// Flags:
//   - --mode: Execution mode ("ingest" or "serve"). Default: "ingest".
//   - --port: Port for the ops server. Defaults to value from config (SERVER_PORT).
func main() {
	ctx := context.Background()

	// Load configuration from environment or .env file
	config.LoadConfig()

	// Initialize JSON logger
	logger.Init()

	mode := flag.String("mode", "ingest", "Mode: ingest or serve")
	port := flag.String("port", config.AppConfig.Server.Port, "Port for serve mode")
	flag.Parse()

	switch *mode {
	case "ingest":
		logger.L().Info().Strs("symbols", config.AppConfig.AlphaVantage.Symbols).Msg("running ingestion")
		if err := runIngest(ctx); err != nil {
			logger.L().Fatal().Err(err).Msg("ingestion failed")
		}

	case "serve":
		logger.L().Info().Msg("starting ops server")

		router, sched, cleanup, err := app.InitializeApp()
		if err != nil {
			logger.L().Fatal().Err(err).Msg("app init error")
		}

		if err := runServe(ctx, router, sched, cleanup, *port); err != nil {
			logger.L().Fatal().Err(err).Msg("server error")
		}

	default:
		logger.L().Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}
