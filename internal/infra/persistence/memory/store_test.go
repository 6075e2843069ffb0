package memory

import (
	"context"
	"errors"
	"testing"

	"itemcore/internal/infra/persistence/storetest"
	"itemcore/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) domain.PersistentStore { return NewStore() })
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	item := storetest.Item("item-1", "Pump")
	if _, err := store.InsertConditional(ctx, item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	next := item.Clone()
	next.Version = 2
	if _, err := store.UpdateConditional(ctx, 1, next, &domain.ItemSnapshot{ItemID: item.ID, Version: 1, Item: item}); err != nil {
		t.Fatalf("update: %v", err)
	}

	state := store.ExportState()
	state.Items["item-1"] = domain.Item{ID: "item-1", Name: "tampered"}

	current, err := store.Get(ctx, "item-1")
	if err != nil || current.Version != 2 {
		t.Fatalf("expected export to be a copy, got %+v (%v)", current, err)
	}

	restored := NewStore()
	restored.ImportState(store.ExportState())
	snaps, err := restored.Snapshots(ctx, "item-1")
	if err != nil || len(snaps) != 1 || snaps[0].Item.Name != "Pump" {
		t.Fatalf("expected imported snapshot, got %+v (%v)", snaps, err)
	}
	if got, _ := restored.Get(ctx, "item-1"); got.Version != 2 {
		t.Fatalf("expected imported item at version 2, got %d", got.Version)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewStore()
	if _, err := store.Get(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if _, err := store.List(ctx, domain.ListQuery{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled list, got %v", err)
	}
}
