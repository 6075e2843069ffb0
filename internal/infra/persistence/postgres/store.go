// Package postgres opens the item store on a PostgreSQL server through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"itemcore/internal/filter"
	"itemcore/internal/infra/persistence/sqlstore"
)

const (
	defaultDriver   = "pgx"
	defaultDSN      = "postgres://localhost/itemcore?sslmode=disable"
	uniqueViolation = "23505"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		name TEXT,
		category TEXT,
		status TEXT,
		priority TEXT,
		assignee TEXT,
		created_by TEXT,
		workflow_stage TEXT,
		approval_required INTEGER NOT NULL DEFAULT 0,
		budget DOUBLE PRECISION,
		estimated_hours DOUBLE PRECISION,
		due_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		payload TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS item_snapshots (
		item_id TEXT NOT NULL,
		version BIGINT NOT NULL,
		captured_at TEXT NOT NULL,
		captured_by TEXT,
		payload TEXT NOT NULL,
		PRIMARY KEY (item_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT,
		recorded_at TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_entries_item ON audit_entries (item_id)`,
}

// Dialect is the PostgreSQL flavour of the item store.
var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Placeholder:       filter.DollarPlaceholder,
	Schema:            schema,
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), pings the server and applies the schema.
func NewStore(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := sqlstore.Open(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
