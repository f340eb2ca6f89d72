package app

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/guttosm/stockpulse/db"
)

// RunMigrations applies all pending schema migrations embedded in the binary.
//
// Behavior:
//   - Serves migrations from the embedded db.Migrations filesystem.
//   - Uses the postgres dialect.
//   - Applying an already up-to-date schema is a no-op.
func RunMigrations(dbConn *sql.DB) error {
	goose.SetBaseFS(db.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(dbConn, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// migrate is an indirection used by InitializeApp; overridden in tests to avoid a real database.
var migrate = RunMigrations
