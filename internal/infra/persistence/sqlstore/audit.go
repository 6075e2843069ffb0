package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"itemcore/pkg/domain"
)

// Append implements domain.AuditSink.
func (s *Store) Append(ctx context.Context, entry domain.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	stmt := fmt.Sprintf("INSERT INTO audit_entries (id, item_id, action, actor_id, recorded_at, archived, payload) VALUES (%s)",
		s.placeholders(1, 7))
	if _, err := s.db.ExecContext(ctx, stmt, entry.ID, entry.ItemID, entry.Action, entry.ActorID, formatTime(entry.Timestamp), 0, string(payload)); err != nil {
		return fmt.Errorf("insert audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// Archive implements domain.AuditArchiver by flagging the item's trail.
func (s *Store) Archive(ctx context.Context, itemID string) error {
	stmt := fmt.Sprintf("UPDATE audit_entries SET archived = 1 WHERE item_id = %s", s.dialect.bind(1))
	if _, err := s.db.ExecContext(ctx, stmt, itemID); err != nil {
		return fmt.Errorf("archive audit trail %s: %w", itemID, err)
	}
	return nil
}

// AuditTrail returns the audit entries of an item in recording order.
func (s *Store) AuditTrail(ctx context.Context, itemID string, includeArchived bool) ([]domain.AuditEntry, error) {
	stmt := "SELECT payload FROM audit_entries WHERE item_id = " + s.dialect.bind(1)
	if !includeArchived {
		stmt += " AND archived = 0"
	}
	stmt += " ORDER BY recorded_at, id"
	rows, err := s.db.QueryContext(ctx, stmt, itemID)
	if err != nil {
		return nil, fmt.Errorf("select audit trail %s: %w", itemID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.AuditEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
