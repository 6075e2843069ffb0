package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"itemcore/pkg/domain"
)

// Notification events emitted by the pipeline.
const (
	EventItemCreated     = "item_created"
	EventItemUpdated     = "item_updated"
	EventItemDeleted     = "item_deleted"
	EventLinkedItemGone  = "linked_item_deleted"
	defaultEffectTimeout = 5 * time.Second
)

// Warning stages reported on results.
const (
	stageNotify       = "notify"
	stageAudit        = "audit"
	stageBackup       = "backup"
	stagePostprocess  = "postprocess"
	stageCleanup      = "cleanup"
	stageDependencies = "dependencies"
)

// BackupSettings enables copying the committed item to the backup writer.
type BackupSettings struct {
	Enabled bool
}

// bounded runs call and waits for it only until ctx is done. A call that
// ignores ctx keeps running in its own goroutine and its result is dropped.
func bounded(ctx context.Context, call func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- call(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("abandoned: %w", ctx.Err())
	}
}

func failureWarning(stage, source string, err error) Warning {
	return Warning{Stage: stage, Source: source, Message: domain.ExternalServiceFailure(source, err).Error()}
}

// NotificationDispatcher fans a payload out to configured channels. It never
// returns an error: failures come back as warnings.
type NotificationDispatcher struct {
	channels map[string]domain.NotificationChannel
	logger   Logger
}

// NewNotificationDispatcher indexes channels by name.
func NewNotificationDispatcher(logger Logger, channels ...domain.NotificationChannel) *NotificationDispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	d := &NotificationDispatcher{channels: make(map[string]domain.NotificationChannel, len(channels)), logger: logger}
	for _, ch := range channels {
		if ch != nil {
			d.channels[ch.Name()] = ch
		}
	}
	return d
}

// Dispatch delivers payload to every selected channel concurrently. An empty
// settings.Channels selects every registered channel.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, settings domain.NotificationSettings, payload domain.NotificationPayload) []Warning {
	if d == nil || !settings.Wants(payload.Event) {
		return nil
	}
	names := settings.Channels
	if len(names) == 0 {
		for name := range d.channels {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	var (
		mu       sync.Mutex
		warnings []Warning
	)
	record := func(w Warning) {
		mu.Lock()
		warnings = append(warnings, w)
		mu.Unlock()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		ch, ok := d.channels[name]
		if !ok {
			record(failureWarning(stageNotify, name, fmt.Errorf("channel not registered")))
			continue
		}
		g.Go(func() error {
			err := bounded(gctx, func(ctx context.Context) error {
				return ch.Send(ctx, settings, payload)
			})
			if err != nil {
				d.logger.Warn(EventSideEffectFailed, "stage", stageNotify, "channel", name, "event", payload.Event, "error", err)
				record(failureWarning(stageNotify, name, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	sortWarnings(warnings)
	return warnings
}

// AuditLogger appends audit entries to a sink, reporting failures as warnings.
type AuditLogger struct {
	sink   domain.AuditSink
	logger Logger
}

// NewAuditLogger wraps sink; a nil sink makes enabled audits warn.
func NewAuditLogger(sink domain.AuditSink, logger Logger) *AuditLogger {
	if logger == nil {
		logger = noopLogger{}
	}
	return &AuditLogger{sink: sink, logger: logger}
}

// Record appends entry when settings enable auditing.
func (a *AuditLogger) Record(ctx context.Context, settings domain.AuditSettings, entry AuditEntry) []Warning {
	if a == nil || !settings.Enabled {
		return nil
	}
	if a.sink == nil {
		return []Warning{failureWarning(stageAudit, "audit_sink", fmt.Errorf("no audit sink configured"))}
	}
	err := bounded(ctx, func(ctx context.Context) error {
		return a.sink.Append(ctx, entry)
	})
	if err != nil {
		a.logger.Warn(EventSideEffectFailed, "stage", stageAudit, "item_id", entry.ItemID, "action", entry.Action, "error", err)
		return []Warning{failureWarning(stageAudit, "audit_sink", err)}
	}
	return nil
}

// Archive moves the audit trail of a deleted item when the sink supports it.
func (a *AuditLogger) Archive(ctx context.Context, itemID string) error {
	if a == nil || a.sink == nil {
		return nil
	}
	archiver, ok := a.sink.(domain.AuditArchiver)
	if !ok {
		return nil
	}
	return bounded(ctx, func(ctx context.Context) error {
		return archiver.Archive(ctx, itemID)
	})
}

func sortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Stage != ws[j].Stage {
			return ws[i].Stage < ws[j].Stage
		}
		return ws[i].Source < ws[j].Source
	})
}
