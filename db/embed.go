// Package db carries the embedded goose migrations applied at startup.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
