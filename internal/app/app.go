package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/api"
	"github.com/guttosm/stockpulse/internal/ingestion"
	"github.com/guttosm/stockpulse/internal/marketdata"
	"github.com/guttosm/stockpulse/internal/scheduler"
	"github.com/guttosm/stockpulse/internal/service"
	"github.com/guttosm/stockpulse/internal/storage"
)

// InitializeApp sets up all application dependencies for serve mode and
// returns a fully configured Gin router, the ingestion scheduler, a cleanup
// function for graceful shutdown, and any error encountered during
// initialization.
//
// Responsibilities:
//   - Connects to PostgreSQL using InitPostgres().
//   - Applies pending schema migrations.
//   - Builds the ingestion pipeline (fetcher, repository) and wraps it in a
//     cron scheduler with an overlap guard.
//   - Creates the HTTP handler layer and configures the Gin router.
//   - Registers health and readiness probes.
//   - Provides a cleanup function to close resources (e.g., DB connection).
//
// Returns:
//   - *gin.Engine: the configured Gin HTTP router.
//   - *scheduler.Scheduler: the cron scheduler (not yet started).
//   - func(): cleanup function to be executed on shutdown.
//   - error: any initialization error that occurred.
func InitializeApp() (*gin.Engine, *scheduler.Scheduler, func(), error) {
	// Load global configuration
	cfg := config.AppConfig

	// Connect to PostgreSQL
	// indirection for unit testing
	db, err := postgresOpener(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	// Bring the schema up to date before serving traffic
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize repository layer (responsible for DB access)
	repo := storage.NewBarRepository(db, cfg.Store)

	// Build the ingestion pipeline: upstream fetcher plus the repository
	fetcher := marketdata.NewFetcher(cfg.AlphaVantage)
	pipeline := ingestion.NewPipeline(fetcher, repo, cfg.AlphaVantage)

	// Schedule ingestion runs; the job absorbs the report, Run logs the summary
	sched, err := scheduler.New(cfg.Schedule.Cron, func(ctx context.Context) error {
		_, err := pipeline.Run(ctx)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	// Initialize service layer (run history)
	runs := service.NewRunService(repo)

	// Initialize HTTP handler layer (business logic to HTTP mapping)
	handler := api.NewHandler(runs, sched.TriggerNow)

	// Setup Gin router with routes
	router := api.NewRouter(handler)

	// Register health and readiness probes
	healthHandler := api.NewHealthHandler(db.Ping)
	healthHandler.Register(router)

	// Cleanup resources on shutdown
	cleanup := func() {
		_ = db.Close()
	}

	return router, sched, cleanup, nil
}
