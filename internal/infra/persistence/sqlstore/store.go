package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"itemcore/internal/filter"
	"itemcore/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.AuditSink       = (*Store)(nil)
	_ domain.AuditArchiver   = (*Store)(nil)
)

const itemColumns = "id, version, name, category, status, priority, assignee, created_by, workflow_stage, approval_required, budget, estimated_hours, due_date, created_at, updated_at, payload"

// Store persists items as indexed rows with the full item as a JSON payload.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open applies the dialect schema to db and returns the store.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	for _, stmt := range dialect.Schema {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply %s schema: %w", dialect.Name, err)
		}
	}
	return &Store{db: db, dialect: dialect}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s.dialect.bind(from + i)
	}
	return strings.Join(parts, ", ")
}

// Get implements domain.PersistentStore.
func (s *Store) Get(ctx context.Context, id string) (domain.Item, error) {
	return getItem(ctx, s.db, s.dialect, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItem(ctx context.Context, q queryer, d Dialect, id string) (domain.Item, error) {
	var payload []byte
	err := q.QueryRowContext(ctx, "SELECT payload FROM items WHERE id = "+d.bind(1), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.NotFound(id)
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("select item %s: %w", id, err)
	}
	return decodeItem(payload)
}

// InsertConditional implements domain.PersistentStore.
func (s *Store) InsertConditional(ctx context.Context, item domain.Item) (domain.Item, error) {
	args, err := itemArgs(item)
	if err != nil {
		return domain.Item{}, err
	}
	stmt := fmt.Sprintf("INSERT INTO items (%s) VALUES (%s)", itemColumns, s.placeholders(1, len(args)))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		if s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err) {
			return domain.Item{}, domain.AlreadyExists(item.ID)
		}
		return domain.Item{}, fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	return item, nil
}

// UpdateConditional implements domain.PersistentStore. The snapshot insert
// and the version-guarded update share one transaction.
func (s *Store) UpdateConditional(ctx context.Context, expectedVersion int64, next domain.Item, snapshot *domain.ItemSnapshot) (result domain.Item, retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Item{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var stored int64
	err = tx.QueryRowContext(ctx, "SELECT version FROM items WHERE id = "+s.dialect.bind(1), next.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.NotFound(next.ID)
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("select version %s: %w", next.ID, err)
	}
	if stored != expectedVersion {
		return domain.Item{}, domain.VersionMismatch(next.ID, expectedVersion, stored)
	}

	if snapshot != nil {
		payload, err := json.Marshal(snapshot.Item)
		if err != nil {
			return domain.Item{}, fmt.Errorf("encode snapshot: %w", err)
		}
		stmt := fmt.Sprintf(`INSERT INTO item_snapshots (item_id, version, captured_at, captured_by, payload) VALUES (%s)
			ON CONFLICT (item_id, version) DO NOTHING`, s.placeholders(1, 5))
		if _, err := tx.ExecContext(ctx, stmt, snapshot.ItemID, snapshot.Version, formatTime(snapshot.CapturedAt), snapshot.CapturedBy, string(payload)); err != nil {
			return domain.Item{}, fmt.Errorf("insert snapshot %s@%d: %w", snapshot.ItemID, snapshot.Version, err)
		}
	}

	args, err := itemArgs(next)
	if err != nil {
		return domain.Item{}, err
	}
	names := strings.Split(itemColumns, ", ")
	sets := make([]string, 0, len(names)-1)
	for i, name := range names[1:] {
		sets = append(sets, name+" = "+s.dialect.bind(i+1))
	}
	n := len(names)
	stmt := fmt.Sprintf("UPDATE items SET %s WHERE id = %s AND version = %s",
		strings.Join(sets, ", "), s.dialect.bind(n), s.dialect.bind(n+1))
	res, err := tx.ExecContext(ctx, stmt, append(args[1:], next.ID, expectedVersion)...)
	if err != nil {
		return domain.Item{}, fmt.Errorf("update item %s: %w", next.ID, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected != 1 {
		return domain.Item{}, domain.VersionMismatch(next.ID, expectedVersion, stored)
	}
	if err := tx.Commit(); err != nil {
		return domain.Item{}, fmt.Errorf("commit update %s: %w", next.ID, err)
	}
	return next, nil
}

// Delete implements domain.PersistentStore. Snapshots are retained.
func (s *Store) Delete(ctx context.Context, id string) (result domain.Item, retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Item{}, fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	item, err := getItem(ctx, tx, s.dialect, id)
	if err != nil {
		return domain.Item{}, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE id = "+s.dialect.bind(1), id); err != nil {
		return domain.Item{}, fmt.Errorf("delete item %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Item{}, fmt.Errorf("commit delete %s: %w", id, err)
	}
	return item, nil
}

// Snapshots implements domain.PersistentStore.
func (s *Store) Snapshots(ctx context.Context, itemID string) ([]domain.ItemSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT item_id, version, captured_at, captured_by, payload FROM item_snapshots WHERE item_id = "+s.dialect.bind(1)+" ORDER BY version",
		itemID)
	if err != nil {
		return nil, fmt.Errorf("select snapshots %s: %w", itemID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.ItemSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetSnapshot implements domain.PersistentStore.
func (s *Store) GetSnapshot(ctx context.Context, itemID string, version int64) (domain.ItemSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT item_id, version, captured_at, captured_by, payload FROM item_snapshots WHERE item_id = %s AND version = %s",
			s.dialect.bind(1), s.dialect.bind(2)),
		itemID, version)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		nf := domain.NotFound(itemID)
		nf.Message = "snapshot not found"
		return domain.ItemSnapshot{}, nf
	}
	return snap, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (domain.ItemSnapshot, error) {
	var (
		snap       domain.ItemSnapshot
		capturedAt string
		capturedBy sql.NullString
		payload    []byte
	)
	if err := row.Scan(&snap.ItemID, &snap.Version, &capturedAt, &capturedBy, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ItemSnapshot{}, err
		}
		return domain.ItemSnapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	at, err := parseTime(capturedAt)
	if err != nil {
		return domain.ItemSnapshot{}, err
	}
	snap.CapturedAt = at
	snap.CapturedBy = capturedBy.String
	if snap.Item, err = decodeItem(payload); err != nil {
		return domain.ItemSnapshot{}, err
	}
	return snap, nil
}

// sqlTranslatable is implemented by predicates that can run in the database.
type sqlTranslatable interface {
	SQL(columns map[string]string, placeholder filter.Placeholder, offset int) (filter.SQLCondition, error)
}

// List implements domain.PersistentStore. Predicates that translate to SQL
// are pushed down; others are evaluated over decoded rows.
func (s *Store) List(ctx context.Context, query domain.ListQuery) (domain.ItemPage, error) {
	where := "id > " + s.dialect.bind(1)
	args := []any{query.AfterID}
	pushed := query.Predicate == nil
	if t, ok := query.Predicate.(sqlTranslatable); ok {
		cond, err := t.SQL(columns, s.dialect.Placeholder, 1)
		switch {
		case err == nil:
			if cond.Clause != "" {
				where += " AND " + cond.Clause
				args = append(args, cond.Params...)
			}
			pushed = true
		case !errors.Is(err, filter.ErrNotTranslatable):
			return domain.ItemPage{}, fmt.Errorf("translate filter: %w", err)
		}
	}
	stmt := "SELECT payload FROM items WHERE " + where + " ORDER BY id"
	if pushed && query.PageSize > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", query.PageSize+1)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return domain.ItemPage{}, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var page domain.ItemPage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return domain.ItemPage{}, fmt.Errorf("scan item: %w", err)
		}
		item, err := decodeItem(payload)
		if err != nil {
			return domain.ItemPage{}, err
		}
		if !pushed {
			rec, err := item.Record()
			if err != nil {
				return domain.ItemPage{}, err
			}
			if !query.Predicate.Match(rec) {
				continue
			}
		}
		if query.PageSize > 0 && len(page.Items) == query.PageSize {
			page.NextAfterID = page.Items[len(page.Items)-1].ID
			break
		}
		page.Items = append(page.Items, item)
	}
	return page, rows.Err()
}

func itemArgs(item domain.Item) ([]any, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	approval := 0
	if item.ApprovalRequired {
		approval = 1
	}
	var due any
	if item.DueDate != nil {
		due = formatTime(*item.DueDate)
	}
	return []any{
		item.ID,
		item.Version,
		item.Name,
		item.Category,
		item.Status,
		item.Priority,
		item.Assignee,
		item.CreatedBy,
		string(item.WorkflowStage),
		approval,
		nullableFloat(item.Budget),
		nullableFloat(item.EstimatedHours),
		due,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
		string(payload),
	}, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func decodeItem(payload []byte) (domain.Item, error) {
	var item domain.Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return domain.Item{}, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}
