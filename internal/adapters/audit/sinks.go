// Package audit provides audit sinks for deployments without a database-backed trail.
package audit

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"itemcore/pkg/domain"
)

var (
	_ domain.AuditSink     = (*LogSink)(nil)
	_ domain.AuditSink     = (*MemorySink)(nil)
	_ domain.AuditArchiver = (*MemorySink)(nil)
)

// LogSink writes audit entries as structured log records.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a sink writing to logger (slog.Default when nil).
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Append implements domain.AuditSink.
func (s *LogSink) Append(ctx context.Context, entry domain.AuditEntry) error {
	attrs := []any{
		"audit_id", entry.ID,
		"item_id", entry.ItemID,
		"action", entry.Action,
		"actor_id", entry.ActorID,
		"timestamp", entry.Timestamp,
	}
	if entry.BeforeSnapshotRef != nil {
		attrs = append(attrs, "before_version", entry.BeforeSnapshotRef.Version)
	}
	s.logger.InfoContext(ctx, "audit entry", attrs...)
	return nil
}

// MemorySink keeps audit entries in process memory.
type MemorySink struct {
	mu       sync.RWMutex
	entries  []domain.AuditEntry
	archived map[string]bool
}

// NewMemorySink builds an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{archived: make(map[string]bool)}
}

// Append implements domain.AuditSink.
func (s *MemorySink) Append(ctx context.Context, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Archive implements domain.AuditArchiver.
func (s *MemorySink) Archive(ctx context.Context, itemID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived[itemID] = true
	return nil
}

// Entries returns the trail of an item ordered by timestamp. Archived
// trails are only returned when includeArchived is set.
func (s *MemorySink) Entries(itemID string, includeArchived bool) []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.archived[itemID] && !includeArchived {
		return nil
	}
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.ItemID == itemID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
