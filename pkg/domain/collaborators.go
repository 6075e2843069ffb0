package domain

import (
	"context"
	"time"
)

// Clock supplies timestamps to the pipeline.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// NotificationPayload is delivered to notification channels.
type NotificationPayload struct {
	Event      string    `json:"event"`
	ActorID    string    `json:"actorId"`
	Item       Item      `json:"item"`
	Prior      *Item     `json:"prior,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NotificationSettings configures notification fan-out for a single call.
type NotificationSettings struct {
	Enabled    bool
	Channels   []string
	Recipients []string
	// Events restricts delivery to the listed events; empty means every event.
	Events []string
}

// Wants reports whether the event should be delivered under these settings.
func (s NotificationSettings) Wants(event string) bool {
	if !s.Enabled {
		return false
	}
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// NotificationChannel delivers a payload to an external destination.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, settings NotificationSettings, payload NotificationPayload) error
}

// AuditSettings configures audit recording for a single call.
type AuditSettings struct {
	Enabled bool
}

// AuditSink appends audit entries to durable storage.
type AuditSink interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// AuditArchiver is implemented by sinks that can archive an item's trail on deletion.
type AuditArchiver interface {
	Archive(ctx context.Context, itemID string) error
}

// AttachmentStore releases attachment binaries owned by an item.
type AttachmentStore interface {
	Cleanup(ctx context.Context, ids []string) error
}

// DependencyResolver checks which referenced item ids exist.
type DependencyResolver interface {
	Resolve(ctx context.Context, ids []string) (resolved, unresolved []string, err error)
}

// ItemCache is an external read cache that must be invalidated by key after
// every committed mutation.
type ItemCache interface {
	Invalidate(ctx context.Context, id string)
}

// BackupWriter copies a committed item to secondary storage.
type BackupWriter interface {
	Backup(ctx context.Context, item Item) error
}
