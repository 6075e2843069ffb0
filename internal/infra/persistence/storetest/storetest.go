// Package storetest holds the behavioural contract shared by every
// domain.PersistentStore implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"itemcore/internal/filter"
	"itemcore/pkg/domain"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) domain.PersistentStore

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Item builds a stored item at version 1.
func Item(id, name string) domain.Item {
	return domain.Item{
		ID:        id,
		Name:      name,
		Category:  "ops",
		Status:    "open",
		Tags:      []string{"a"},
		Version:   1,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

// Run exercises the PersistentStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("UpdateConditional", func(t *testing.T) { testUpdateConditional(t, newStore(t)) })
	t.Run("SnapshotsAreImmutable", func(t *testing.T) { testSnapshotsImmutable(t, newStore(t)) })
	t.Run("DeleteRetainsSnapshots", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListPagination", func(t *testing.T) { testListPagination(t, newStore(t)) })
	t.Run("ListFilter", func(t *testing.T) { testListFilter(t, newStore(t)) })
}

func testInsertAndGet(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	item := Item("item-1", "Pump")
	if _, err := store.InsertConditional(ctx, item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := store.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Pump" || got.Version != 1 || !got.CreatedAt.Equal(baseTime) {
		t.Fatalf("unexpected item %+v", got)
	}
	got.Tags[0] = "mutated"
	again, _ := store.Get(ctx, "item-1")
	if again.Tags[0] != "a" {
		t.Fatalf("expected stored item to be isolated from callers")
	}
	if _, err := store.InsertConditional(ctx, item); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testUpdateConditional(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	item := Item("item-1", "Pump")
	if _, err := store.InsertConditional(ctx, item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	next := item.Clone()
	next.Name = "Pump v2"
	next.Version = 2
	next.UpdatedAt = baseTime.Add(time.Minute)
	snap := &domain.ItemSnapshot{ItemID: item.ID, Version: 1, Item: item, CapturedAt: next.UpdatedAt, CapturedBy: "alice"}
	if _, err := store.UpdateConditional(ctx, 1, next, snap); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Get(ctx, item.ID)
	if err != nil || got.Version != 2 || got.Name != "Pump v2" {
		t.Fatalf("expected version 2, got %+v (%v)", got, err)
	}

	stale := next.Clone()
	stale.Version = 3
	_, err = store.UpdateConditional(ctx, 1, stale, nil)
	var mismatch *domain.Error
	if !errors.As(err, &mismatch) || mismatch.Kind != domain.KindVersionMismatch {
		t.Fatalf("expected version mismatch, got %v", err)
	}
	if mismatch.Expected != 1 || mismatch.Actual != 2 {
		t.Fatalf("expected mismatch 1 vs 2, got %d vs %d", mismatch.Expected, mismatch.Actual)
	}

	ghost := Item("ghost", "Ghost")
	if _, err := store.UpdateConditional(ctx, 1, ghost, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testSnapshotsImmutable(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	item := Item("item-1", "Pump")
	if _, err := store.InsertConditional(ctx, item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	first := &domain.ItemSnapshot{ItemID: item.ID, Version: 1, Item: item, CapturedAt: baseTime, CapturedBy: "alice"}
	next := item.Clone()
	next.Version = 2
	if _, err := store.UpdateConditional(ctx, 1, next, first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	rewritten := item.Clone()
	rewritten.Name = "Rewritten"
	second := &domain.ItemSnapshot{ItemID: item.ID, Version: 1, Item: rewritten, CapturedAt: baseTime, CapturedBy: "mallory"}
	third := next.Clone()
	third.Version = 3
	if _, err := store.UpdateConditional(ctx, 2, third, second); err != nil {
		t.Fatalf("second update: %v", err)
	}

	snap, err := store.GetSnapshot(ctx, item.ID, 1)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snap.Item.Name != "Pump" || snap.CapturedBy != "alice" {
		t.Fatalf("expected the first snapshot to survive, got %+v", snap)
	}
	if _, err := store.GetSnapshot(ctx, item.ID, 9); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected snapshot not found, got %v", err)
	}
}

func testDelete(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	item := Item("item-1", "Pump")
	if _, err := store.InsertConditional(ctx, item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	next := item.Clone()
	next.Version = 2
	snap := &domain.ItemSnapshot{ItemID: item.ID, Version: 1, Item: item, CapturedAt: baseTime}
	if _, err := store.UpdateConditional(ctx, 1, next, snap); err != nil {
		t.Fatalf("update: %v", err)
	}
	removed, err := store.Delete(ctx, item.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed.Version != 2 {
		t.Fatalf("expected last stored state, got version %d", removed.Version)
	}
	if _, err := store.Get(ctx, item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted item to be gone, got %v", err)
	}
	if _, err := store.Delete(ctx, item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}
	snaps, err := store.Snapshots(ctx, item.ID)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Version != 1 {
		t.Fatalf("expected retained snapshot, got %+v", snaps)
	}
}

func testListPagination(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	for i := 5; i >= 1; i-- {
		if _, err := store.InsertConditional(ctx, Item(fmt.Sprintf("item-%d", i), "n")); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	var ids []string
	after := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatalf("pagination did not terminate")
		}
		page, err := store.List(ctx, domain.ListQuery{PageSize: 2, AfterID: after})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, item := range page.Items {
			ids = append(ids, item.ID)
		}
		if page.NextAfterID == "" {
			break
		}
		after = page.NextAfterID
	}
	want := []string{"item-1", "item-2", "item-3", "item-4", "item-5"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
}

func testListFilter(t *testing.T, store domain.PersistentStore) {
	ctx := context.Background()
	fixtures := []domain.Item{Item("a", "Alpha"), Item("b", "Beta"), Item("c", "Gamma")}
	fixtures[1].Status = "closed"
	fixtures[2].Tags = []string{"urgent"}
	for _, item := range fixtures {
		if _, err := store.InsertConditional(ctx, item); err != nil {
			t.Fatalf("insert %s: %v", item.ID, err)
		}
	}
	cases := map[string][]string{
		`status = "open"`:                     {"a", "c"},
		`status = "open" AND name != "Alpha"`: {"c"},
		`tags:"urgent"`:                       {"c"},
	}
	for expr, want := range cases {
		f, err := filter.Parse(expr)
		if err != nil {
			t.Fatalf("parse %q: %v", expr, err)
		}
		page, err := store.List(ctx, domain.ListQuery{Predicate: f, PageSize: 10})
		if err != nil {
			t.Fatalf("list %q: %v", expr, err)
		}
		var got []string
		for _, item := range page.Items {
			got = append(got, item.ID)
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("%q: expected %v, got %v", expr, want, got)
		}
	}
}
