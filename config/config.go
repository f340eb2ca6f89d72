package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from environment
// variables or a .env file.
//
// It is composed of smaller structs that represent different concerns of the
// system: the ops HTTP server, the Postgres connection, the market-data API
// client, the persistence layer, and the ingestion schedule.
//
// Example ENV equivalent:
//
//	API_KEY=demo
//	STOCK_SYMBOLS=AAPL,MSFT,GOOG
//	POSTGRES_HOST=localhost
//	POSTGRES_DB=stockpulse
//	SCHEDULE_CRON=0 6 * * *
type Config struct {
	Server       ServerConfig       // ops HTTP server configuration
	Postgres     PostgresConfig     // PostgreSQL connection settings
	AlphaVantage AlphaVantageConfig // market-data API client settings
	Store        StoreConfig        // batch upsert retry/chunking settings
	Schedule     ScheduleConfig     // cron trigger settings
}

// ServerConfig holds HTTP server settings such as the port to listen on.
type ServerConfig struct {
	Port string // The TCP port the ops API will listen on (e.g., "8080")
}

// PostgresConfig defines connection details for PostgreSQL.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	URL      string // computed DSN used by database/sql to connect
}

// AlphaVantageConfig defines the upstream market-data API client settings.
//
// Fields:
//   - BaseURL: API host; the daily-series endpoint lives at /query.
//   - APIKey: opaque credential sent as the apikey query parameter.
//   - Symbols: ticker symbols fetched in order, one request each.
//   - Timeout: per-request HTTP timeout.
//   - MaxRetries: maximum attempts per symbol, transient errors only.
//   - BackoffBase: first retry delay; doubles per attempt with ±20% jitter.
//   - PoliteDelay: pause between consecutive symbol fetches.
type AlphaVantageConfig struct {
	BaseURL     string
	APIKey      string
	Symbols     []string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	PoliteDelay time.Duration
}

// StoreConfig defines the persistence layer's chunking and retry policy.
type StoreConfig struct {
	MaxRetries  int           // attempts per chunk before the run fails
	BackoffBase time.Duration // first retry delay; doubles per attempt, no jitter
	BatchSize   int           // rows per bulk upsert statement
}

// ScheduleConfig holds the cron expression driving serve-mode ingestion runs.
type ScheduleConfig struct {
	Cron string // five-field cron expression, evaluated in UTC
}

// AppConfig is the globally accessible configuration instance.
//
// It is populated once via LoadConfig() and used throughout the application.
// All services should import this package and read from AppConfig instead of
// reloading environment variables directly.
var AppConfig Config

// LoadConfig initializes the global AppConfig by reading from a .env file
// or directly from environment variables.
//
// Precedence (from lowest to highest):
//  1. Defaults set in this function.
//  2. Values from .env file (if present).
//  3. Environment variables.
//
// Behavior:
//   - Sets defaults for all fields that have a sensible one (API_KEY does not).
//   - Reads environment variables automatically with viper.AutomaticEnv().
//   - Constructs the PostgreSQL connection string (DSN).
//   - Calls validateConfig() to ensure required fields are present.
//
// Fatal exit:
//   - If required variables are missing, validateConfig() will terminate the
//     app with a descriptive log message.
func LoadConfig() {
	// Default values
	viper.SetDefault("SERVER_PORT", "8080")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "postgres")
	viper.SetDefault("POSTGRES_DB", "stockpulse")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")

	viper.SetDefault("ALPHA_VANTAGE_URL", "https://www.alphavantage.co")
	viper.SetDefault("STOCK_SYMBOLS", "AAPL")
	viper.SetDefault("FETCH_TIMEOUT_SEC", 15)
	viper.SetDefault("FETCH_MAX_RETRIES", 5)
	viper.SetDefault("FETCH_BACKOFF_BASE_MS", 1000)
	viper.SetDefault("API_POLITE_DELAY_SEC", 12)

	viper.SetDefault("DB_MAX_RETRIES", 3)
	viper.SetDefault("DB_BACKOFF_BASE_MS", 1000)
	viper.SetDefault("DB_BATCH_SIZE", 200)

	viper.SetDefault("SCHEDULE_CRON", "0 6 * * *")

	// Optionally read from .env if present (common in local dev)
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig() // ignore error if no .env

	// Read environment variables automatically
	viper.AutomaticEnv()

	// Populate global config instance
	AppConfig = Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("POSTGRES_HOST"),
			Port:     viper.GetInt("POSTGRES_PORT"),
			User:     viper.GetString("POSTGRES_USER"),
			Password: viper.GetString("POSTGRES_PASSWORD"),
			DBName:   viper.GetString("POSTGRES_DB"),
			SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		},
		AlphaVantage: AlphaVantageConfig{
			BaseURL:     viper.GetString("ALPHA_VANTAGE_URL"),
			APIKey:      viper.GetString("API_KEY"),
			Symbols:     SplitSymbols(viper.GetString("STOCK_SYMBOLS")),
			Timeout:     time.Duration(viper.GetInt("FETCH_TIMEOUT_SEC")) * time.Second,
			MaxRetries:  viper.GetInt("FETCH_MAX_RETRIES"),
			BackoffBase: time.Duration(viper.GetInt("FETCH_BACKOFF_BASE_MS")) * time.Millisecond,
			PoliteDelay: time.Duration(viper.GetInt("API_POLITE_DELAY_SEC")) * time.Second,
		},
		Store: StoreConfig{
			MaxRetries:  viper.GetInt("DB_MAX_RETRIES"),
			BackoffBase: time.Duration(viper.GetInt("DB_BACKOFF_BASE_MS")) * time.Millisecond,
			BatchSize:   viper.GetInt("DB_BATCH_SIZE"),
		},
		Schedule: ScheduleConfig{
			Cron: viper.GetString("SCHEDULE_CRON"),
		},
	}

	// Construct Postgres DSN (used by database/sql)
	AppConfig.Postgres.URL = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		AppConfig.Postgres.User,
		AppConfig.Postgres.Password,
		AppConfig.Postgres.Host,
		AppConfig.Postgres.Port,
		AppConfig.Postgres.DBName,
		AppConfig.Postgres.SSLMode,
	)

	// Validate critical fields
	validateConfig()
}

// SplitSymbols parses a comma-separated ticker list, trimming whitespace and
// dropping empty entries.
func SplitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// validateConfig ensures required variables are present and terminates
// the application if they are missing.
//
// This avoids unexpected runtime failures due to incomplete configuration.
func validateConfig() {
	var missing []string

	if AppConfig.Server.Port == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if AppConfig.Postgres.Host == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if AppConfig.Postgres.Port == 0 {
		missing = append(missing, "POSTGRES_PORT")
	}
	if AppConfig.Postgres.User == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if AppConfig.Postgres.Password == "" {
		missing = append(missing, "POSTGRES_PASSWORD")
	}
	if AppConfig.Postgres.DBName == "" {
		missing = append(missing, "POSTGRES_DB")
	}
	if AppConfig.AlphaVantage.APIKey == "" {
		missing = append(missing, "API_KEY")
	}
	if len(AppConfig.AlphaVantage.Symbols) == 0 {
		missing = append(missing, "STOCK_SYMBOLS")
	}
	if AppConfig.Schedule.Cron == "" {
		missing = append(missing, "SCHEDULE_CRON")
	}

	if len(missing) > 0 {
		log.Fatalf("missing required environment variables: %v\n", missing)
	}

	// Numeric knobs must be positive; zero or negative values would stall or
	// break the retry/backoff machinery downstream.
	var invalid []string
	if AppConfig.AlphaVantage.Timeout <= 0 {
		invalid = append(invalid, "FETCH_TIMEOUT_SEC")
	}
	if AppConfig.AlphaVantage.MaxRetries < 1 {
		invalid = append(invalid, "FETCH_MAX_RETRIES")
	}
	if AppConfig.AlphaVantage.BackoffBase <= 0 {
		invalid = append(invalid, "FETCH_BACKOFF_BASE_MS")
	}
	if AppConfig.AlphaVantage.PoliteDelay < 0 {
		invalid = append(invalid, "API_POLITE_DELAY_SEC")
	}
	if AppConfig.Store.MaxRetries < 1 {
		invalid = append(invalid, "DB_MAX_RETRIES")
	}
	if AppConfig.Store.BackoffBase <= 0 {
		invalid = append(invalid, "DB_BACKOFF_BASE_MS")
	}
	if AppConfig.Store.BatchSize < 1 {
		invalid = append(invalid, "DB_BATCH_SIZE")
	}

	if len(invalid) > 0 {
		log.Fatalf("environment variables must be positive: %v\n", invalid)
	}
}
