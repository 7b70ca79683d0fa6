package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/spf13/cast"
	_ "modernc.org/sqlite"

	"github.com/username/tradejournal/src/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrDuplicateKey = errors.New("duplicate idempotency key")
	ErrNotFound     = errors.New("record not found")
)

// InitDB opens the database and ensures the import tables exist.
func InitDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer keeps concurrent chunk commits from hitting SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	logger.L.Info("Checking database migrations", "driver", driver)
	if err := migrate(db, driver); err != nil {
		db.Close()
		return nil, err
	}
	logger.L.Info("Database tables ensured/created.")
	return db, nil
}

func migrate(db *sql.DB, driver string) error {
	statements := sqliteSchema
	if driver == DriverPostgres {
		statements = postgresSchema
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			logger.L.Error("failed to create tables", "error", err)
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		broker TEXT NOT NULL,
		external_id TEXT,
		idempotency_key TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		symbol TEXT NOT NULL,
		symbol_raw TEXT,
		side TEXT NOT NULL,
		qty REAL NOT NULL,
		price REAL NOT NULL,
		fees REAL DEFAULT 0,
		commission REAL DEFAULT 0,
		executed_at TIMESTAMP NOT NULL,
		group_key TEXT,
		instrument_type TEXT,
		opened_at TIMESTAMP,
		qty_opened REAL,
		meta TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, idempotency_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user_executed ON trades(user_id, executed_at)`,
	`CREATE TABLE IF NOT EXISTS import_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		job_id TEXT NOT NULL UNIQUE,
		broker TEXT,
		filename TEXT,
		file_type TEXT,
		status TEXT NOT NULL,
		dry_run BOOLEAN DEFAULT FALSE,
		total_rows INTEGER DEFAULT 0,
		processed_rows INTEGER DEFAULT 0,
		added INTEGER DEFAULT 0,
		duplicates INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS mapping_presets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		broker_key TEXT,
		mapping TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, name)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		broker TEXT NOT NULL,
		external_id TEXT,
		idempotency_key TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		symbol TEXT NOT NULL,
		symbol_raw TEXT,
		side TEXT NOT NULL,
		qty DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		fees DOUBLE PRECISION DEFAULT 0,
		commission DOUBLE PRECISION DEFAULT 0,
		executed_at TIMESTAMPTZ NOT NULL,
		group_key TEXT,
		instrument_type TEXT,
		opened_at TIMESTAMPTZ,
		qty_opened DOUBLE PRECISION,
		meta JSONB,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(user_id, idempotency_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user_executed ON trades(user_id, executed_at)`,
	`CREATE TABLE IF NOT EXISTS import_runs (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		job_id TEXT NOT NULL UNIQUE,
		broker TEXT,
		filename TEXT,
		file_type TEXT,
		status TEXT NOT NULL,
		dry_run BOOLEAN DEFAULT FALSE,
		total_rows INTEGER DEFAULT 0,
		processed_rows INTEGER DEFAULT 0,
		added INTEGER DEFAULT 0,
		duplicates INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS mapping_presets (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		broker_key TEXT,
		mapping JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(user_id, name)
	)`,
}

// rebind rewrites ? placeholders to $n for postgres.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation recognises unique-constraint failures from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// scanTime converts whatever the driver returned for a timestamp column.
func scanTime(v any) (time.Time, error) {
	if v == nil {
		return time.Time{}, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected timestamp %v: %w", v, err)
	}
	return t.UTC(), nil
}
