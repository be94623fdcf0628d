package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// TestDBConnection verifies the database is reachable.
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return DB.Ping()
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't
// exist, then registers the storage namespaces.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS schema_namespaces (
			namespace VARCHAR(255) PRIMARY KEY,
			namespace_id CHAR(66) NOT NULL UNIQUE,
			version INTEGER NOT NULL,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS market_substrates (
			market_id BIGINT NOT NULL,
			substrate CHAR(66) NOT NULL,
			position INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (market_id, substrate)
		);
		CREATE INDEX IF NOT EXISTS idx_market_substrates_market ON market_substrates(market_id, position);

		CREATE TABLE IF NOT EXISTS market_balance_fuses (
			market_id BIGINT PRIMARY KEY,
			balance_fuse CHAR(42) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS market_totals (
			market_id BIGINT PRIMARY KEY,
			value_wad NUMERIC(78, 0) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS fee_state (
			singleton_id SMALLINT PRIMARY KEY DEFAULT 1,
			last_accrual TIMESTAMPTZ NOT NULL,
			high_water_mark_wad NUMERIC(78, 0) NOT NULL,
			management_shares_minted NUMERIC(78, 0) NOT NULL,
			performance_shares_minted NUMERIC(78, 0) NOT NULL,
			CONSTRAINT fee_state_singleton CHECK (singleton_id = 1)
		);

		CREATE TABLE IF NOT EXISTS execution_receipts (
			execution_id UUID PRIMARY KEY,
			caller CHAR(42) NOT NULL,
			receipts JSONB NOT NULL,
			markets_touched BIGINT[] NOT NULL,
			total_assets_wad NUMERIC(78, 0) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_execution_receipts_finished ON execution_receipts(finished_at DESC);
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := registerNamespaces(); err != nil {
		return err
	}

	log.Info().Msg("Database schema ensured.")
	return nil
}
