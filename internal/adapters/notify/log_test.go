package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"itemcore/pkg/domain"
)

func TestLogChannelWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	ch := NewLogChannel(slog.New(slog.NewJSONHandler(&buf, nil)))
	if ch.Name() != "log" {
		t.Fatalf("unexpected name %s", ch.Name())
	}
	prior := domain.Item{ID: "item-1", Version: 1}
	err := ch.Send(context.Background(), domain.NotificationSettings{Recipients: []string{"bob"}}, domain.NotificationPayload{
		Event:   "item_updated",
		ActorID: "alice",
		Item:    domain.Item{ID: "item-1", Version: 2},
		Prior:   &prior,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if rec["msg"] != "item notification" || rec["event"] != "item_updated" || rec["item_id"] != "item-1" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["prior_version"] != float64(1) || rec["version"] != float64(2) {
		t.Fatalf("expected versions in record, got %v", rec)
	}
}

func TestLogChannelHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewLogChannel(nil).Send(ctx, domain.NotificationSettings{}, domain.NotificationPayload{}); err == nil {
		t.Fatalf("expected canceled context error")
	}
}
