//go:build integration
// +build integration

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	goose "github.com/pressly/goose/v3"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/domain/models"
)

// startPostgres spins up a Postgres container and returns a DSN and terminate func.
func startPostgres(t *testing.T) (dsn string, terminate func()) {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "stockpulse",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "postgres", func(host string, port nat.Port) string {
			return fmt.Sprintf("host=%s port=%s user=postgres password=postgres dbname=stockpulse sslmode=disable", host, port.Port())
		}).WithStartupTimeout(60 * time.Second),
	}

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("container start: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/stockpulse?sslmode=disable", host, port.Port())
	terminate = func() { _ = container.Terminate(context.Background()) }
	return dsn, terminate
}

func openDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return db
}

func runMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("dialect: %v", err)
	}
	// migrations path relative to this test file (internal/storage → ../../db/migrations)
	path := filepath.Join("..", "..", "db", "migrations")
	if err := goose.Up(db, path); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
}

func TestUpsertBarsBatch_IdempotentOverwrite(t *testing.T) {
	dsn, terminate := startPostgres(t)
	defer terminate()
	db := openDB(t, dsn)
	defer func() { _ = db.Close() }()
	runMigrations(t, db)

	repo := NewBarRepository(db, config.StoreConfig{MaxRetries: 3, BackoffBase: 10 * time.Millisecond, BatchSize: 200})
	ctx := context.Background()

	first := models.PriceBar{
		Symbol: "AAPL", Timestamp: "2024-01-02",
		Open: 10.5, High: 11.0, Low: 10.0, Close: 10.8, Volume: 1000,
		Raw: json.RawMessage(`{"1. open": "10.5"}`),
	}
	if n, err := repo.UpsertBarsBatch(ctx, []models.PriceBar{first}); err != nil || n != 1 {
		t.Fatalf("first upsert: n=%d err=%v", n, err)
	}

	// same natural key, different measurements: must overwrite, not duplicate
	second := first
	second.Close = 99.9
	second.Volume = 5000
	second.Raw = json.RawMessage(`{"1. open": "10.5", "4. close": "99.9"}`)
	if n, err := repo.UpsertBarsBatch(ctx, []models.PriceBar{second}); err != nil || n != 1 {
		t.Fatalf("second upsert: n=%d err=%v", n, err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM stock_data WHERE symbol = 'AAPL'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("want exactly 1 row, got %d", count)
	}

	var closePrice float64
	var volume int64
	if err := db.QueryRow(`SELECT close, volume FROM stock_data WHERE symbol = 'AAPL' AND ts = '2024-01-02'`).Scan(&closePrice, &volume); err != nil {
		t.Fatalf("select: %v", err)
	}
	if closePrice != 99.9 || volume != 5000 {
		t.Fatalf("latest values must win: close=%v volume=%d", closePrice, volume)
	}
}

func TestRunLog_RoundTrip(t *testing.T) {
	dsn, terminate := startPostgres(t)
	defer terminate()
	db := openDB(t, dsn)
	defer func() { _ = db.Close() }()
	runMigrations(t, db)

	repo := NewBarRepository(db, config.StoreConfig{MaxRetries: 3, BackoffBase: 10 * time.Millisecond, BatchSize: 200})
	ctx := context.Background()

	if rep, err := repo.LatestRun(ctx); err != nil || rep != nil {
		t.Fatalf("want no run recorded yet, got %v,%v", rep, err)
	}

	started := time.Now().UTC().Truncate(time.Microsecond)
	rep := models.RunReport{
		StartedAt: started, FinishedAt: started.Add(time.Minute),
		SymbolsTotal: 2, SymbolsOK: 2, RowsUpserted: 150,
		Status: models.RunSucceeded,
	}
	if err := repo.InsertRunReport(ctx, rep); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	got, err := repo.LatestRun(ctx)
	if err != nil || got == nil {
		t.Fatalf("latest run: got=%v err=%v", got, err)
	}
	if got.RowsUpserted != 150 || got.Status != models.RunSucceeded {
		t.Fatalf("unexpected report: %+v", got)
	}
}
