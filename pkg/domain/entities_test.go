package domain

import (
	"testing"
	"time"
)

func TestItemCloneIsDeep(t *testing.T) {
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hours := 2.0
	item := Item{
		ID:             "item-1",
		DueDate:        &due,
		EstimatedHours: &hours,
		Tags:           []string{"a"},
		CustomFields:   map[string]any{"nested": map[string]any{"k": "v"}},
	}
	cp := item.Clone()
	*cp.DueDate = due.Add(time.Hour)
	*cp.EstimatedHours = 3
	cp.Tags[0] = "b"
	cp.CustomFields["nested"].(map[string]any)["k"] = "changed"

	if !item.DueDate.Equal(due) || *item.EstimatedHours != 2 || item.Tags[0] != "a" {
		t.Fatalf("clone shares scalar pointers or slices: %+v", item)
	}
	if item.CustomFields["nested"].(map[string]any)["k"] != "v" {
		t.Fatalf("clone shares nested maps")
	}
}

func TestCapabilitySet(t *testing.T) {
	set := NewCapabilitySet(CapabilityWrite, CapabilityRead, CapabilityWrite)
	if !set.Has(CapabilityRead) || set.Has(CapabilityAdmin) {
		t.Fatalf("unexpected membership")
	}
	if !set.HasAny(CapabilityAdmin, CapabilityWrite) || set.HasAny(CapabilityApprover) {
		t.Fatalf("unexpected HasAny")
	}
	sorted := set.Sorted()
	if len(sorted) != 2 || sorted[0] != CapabilityRead || sorted[1] != CapabilityWrite {
		t.Fatalf("unexpected sorted %v", sorted)
	}
}

func TestAuditAction(t *testing.T) {
	for action, want := range map[Action]string{
		ActionCreate:     "created",
		ActionUpdate:     "updated",
		ActionDelete:     "deleted",
		Action("import"): "import",
	} {
		if got := action.AuditAction(); got != want {
			t.Fatalf("%s: got %q, want %q", action, got, want)
		}
	}
}

func TestNotificationSettingsWants(t *testing.T) {
	if (NotificationSettings{}).Wants("item_created") {
		t.Fatalf("disabled settings must not deliver")
	}
	all := NotificationSettings{Enabled: true}
	if !all.Wants("anything") {
		t.Fatalf("empty event list selects every event")
	}
	some := NotificationSettings{Enabled: true, Events: []string{"item_deleted"}}
	if some.Wants("item_created") || !some.Wants("item_deleted") {
		t.Fatalf("event filter not applied")
	}
}

func TestSnapshotRef(t *testing.T) {
	ref := ItemSnapshot{ItemID: "item-1", Version: 4}.Ref()
	if ref != (SnapshotRef{ItemID: "item-1", Version: 4}) {
		t.Fatalf("unexpected ref %+v", ref)
	}
}
