// Package notify provides notification channels for item events.
package notify

import (
	"context"
	"log/slog"

	"itemcore/pkg/domain"
)

// LogChannelName is the name the log channel registers under.
const LogChannelName = "log"

var _ domain.NotificationChannel = (*LogChannel)(nil)

// LogChannel emits each notification as a structured log record.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel builds a channel writing to logger (slog.Default when nil).
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

// Name implements domain.NotificationChannel.
func (c *LogChannel) Name() string { return LogChannelName }

// Send implements domain.NotificationChannel.
func (c *LogChannel) Send(ctx context.Context, settings domain.NotificationSettings, payload domain.NotificationPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attrs := []any{
		"event", payload.Event,
		"item_id", payload.Item.ID,
		"version", payload.Item.Version,
		"actor_id", payload.ActorID,
		"occurred_at", payload.OccurredAt,
	}
	if len(settings.Recipients) > 0 {
		attrs = append(attrs, "recipients", settings.Recipients)
	}
	if payload.Prior != nil {
		attrs = append(attrs, "prior_version", payload.Prior.Version)
	}
	c.logger.InfoContext(ctx, "item notification", attrs...)
	return nil
}
