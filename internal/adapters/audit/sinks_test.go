package audit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"itemcore/pkg/domain"
)

func TestMemorySinkTrailAndArchive(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []domain.AuditEntry{
		{ID: "2", ItemID: "a", Action: "updated", Timestamp: at.Add(time.Second)},
		{ID: "1", ItemID: "a", Action: "created", Timestamp: at},
		{ID: "3", ItemID: "b", Action: "created", Timestamp: at},
	}
	for _, e := range entries {
		if err := sink.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	trail := sink.Entries("a", false)
	if len(trail) != 2 || trail[0].Action != "created" {
		t.Fatalf("unexpected trail %+v", trail)
	}
	if err := sink.Archive(ctx, "a"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got := sink.Entries("a", false); len(got) != 0 {
		t.Fatalf("expected archived trail hidden, got %+v", got)
	}
	if got := sink.Entries("a", true); len(got) != 2 {
		t.Fatalf("expected archived trail retained, got %+v", got)
	}
}

func TestLogSinkWritesEntry(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	err := sink.Append(context.Background(), domain.AuditEntry{
		ID: "e1", ItemID: "a", Action: "updated", ActorID: "alice",
		BeforeSnapshotRef: &domain.SnapshotRef{ItemID: "a", Version: 1},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"audit entry", "item_id=a", "action=updated", "before_version=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %s", want, out)
		}
	}
}
