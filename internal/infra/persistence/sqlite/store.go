// Package sqlite opens the item store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"itemcore/internal/filter"
	"itemcore/internal/infra/persistence/sqlstore"
)

const defaultPath = "itemcore.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		name TEXT,
		category TEXT,
		status TEXT,
		priority TEXT,
		assignee TEXT,
		created_by TEXT,
		workflow_stage TEXT,
		approval_required INTEGER NOT NULL DEFAULT 0,
		budget REAL,
		estimated_hours REAL,
		due_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		payload TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS item_snapshots (
		item_id TEXT NOT NULL,
		version INTEGER NOT NULL,
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

// Dialect is the SQLite flavour of the item store.
var Dialect = sqlstore.Dialect{
	Name:        "sqlite",
	Placeholder: filter.QuestionPlaceholder,
	Schema:      schema,
	IsUniqueViolation: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// NewStore opens (creating when missing) the SQLite database at path.
func NewStore(path string) (*sqlstore.Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)
	store, err := sqlstore.Open(context.Background(), db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
