package core

import (
	"context"
	"testing"
	"time"
)

func TestDiffRecords(t *testing.T) {
	base := Record{"id": "x", "version": 2.0, "name": "a", "tags": []any{"t"}, "status": "open", "createdBy": "alice"}
	proposed := Record{"id": "x", "version": 3, "name": "a", "tags": []string{"t"}, "priority": "high", "createdBy": "bob"}

	delta := diffRecords(base, proposed)
	if len(delta) != 2 {
		t.Fatalf("unexpected delta %+v", delta)
	}
	if delta["priority"] != "high" {
		t.Fatalf("added field missing from delta: %+v", delta)
	}
	if v, ok := delta["status"]; !ok || v != nil {
		t.Fatalf("dropped field must be cleared: %+v", delta)
	}
}

func TestSystemFieldViolations(t *testing.T) {
	base := Record{"id": "x", "version": 1.0, "createdBy": "alice"}
	if v := systemFieldViolations(base, Record{"id": "x", "version": 1, "name": "n"}); len(v) != 0 {
		t.Fatalf("unchanged system fields flagged: %+v", v)
	}
	v := systemFieldViolations(base, Record{"version": 2, "createdBy": "bob", "updatedAt": "now"}, "createdBy")
	if len(v) != 3 {
		t.Fatalf("expected three violations, got %+v", v)
	}
	for _, violation := range v {
		if violation.Reason != "is immutable" {
			t.Fatalf("unexpected reason %q", violation.Reason)
		}
	}
}

func TestUniqueStringsSortsAndDrops(t *testing.T) {
	got := uniqueStrings([]string{"b", "", "a", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected %v", got)
	}
}

func TestVersioningSnapshotIsDeepCopy(t *testing.T) {
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))
	item := Item{ID: "item-1", Version: 4, Tags: []string{"a"}, DueDate: &due}
	snap := VersioningService{}.Snapshot(item, "alice", due)

	item.Tags[0] = "mutated"
	*item.DueDate = due.Add(time.Hour)
	if snap.Item.Tags[0] != "a" || !snap.Item.DueDate.Equal(due) {
		t.Fatalf("snapshot shares storage with the item: %+v", snap.Item)
	}
	if snap.Version != 4 || snap.ItemID != "item-1" || snap.CapturedBy != "alice" || snap.CapturedAt.Location() != time.UTC {
		t.Fatalf("unexpected snapshot metadata: %+v", snap)
	}
}

func TestNoopCollaborators(_ *testing.T) {
	logger := noopLogger{}
	logger.Debug("debug", "key", "value")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	noopMetrics{}.Observe(context.Background(), "op", true, time.Millisecond)
	_, span := noopTracer{}.Start(context.Background(), "op")
	span.End(nil)
}
