package core

import (
	"context"
	"errors"

	"itemcore/pkg/domain"
)

// PersistenceGateway is the only write path to the store. It adds no business
// logic beyond mapping store failures onto the error taxonomy.
type PersistenceGateway struct {
	store domain.PersistentStore
}

// NewPersistenceGateway wraps store.
func NewPersistenceGateway(store domain.PersistentStore) PersistenceGateway {
	return PersistenceGateway{store: store}
}

// Get reads the current item.
func (g PersistenceGateway) Get(ctx context.Context, id string) (Item, error) {
	item, err := g.store.Get(ctx, id)
	return item, mapStoreError("get item", err)
}

// Insert stores a new item.
func (g PersistenceGateway) Insert(ctx context.Context, item Item) (Item, error) {
	stored, err := g.store.InsertConditional(ctx, item)
	return stored, mapStoreError("insert item", err)
}

// UpdateIfVersion replaces the item when its stored version equals expected,
// writing snap first in the same atomic scope when it is non-nil.
func (g PersistenceGateway) UpdateIfVersion(ctx context.Context, expected int64, next Item, snap *ItemSnapshot) (Item, error) {
	stored, err := g.store.UpdateConditional(ctx, expected, next, snap)
	return stored, mapStoreError("update item", err)
}

// Delete removes the item, returning its last state.
func (g PersistenceGateway) Delete(ctx context.Context, id string) (Item, error) {
	removed, err := g.store.Delete(ctx, id)
	return removed, mapStoreError("delete item", err)
}

// Snapshot reads a retained snapshot.
func (g PersistenceGateway) Snapshot(ctx context.Context, id string, version int64) (ItemSnapshot, error) {
	snap, err := g.store.GetSnapshot(ctx, id, version)
	return snap, mapStoreError("get snapshot", err)
}

// Snapshots lists the retained snapshots of an item.
func (g PersistenceGateway) Snapshots(ctx context.Context, id string) ([]ItemSnapshot, error) {
	snaps, err := g.store.Snapshots(ctx, id)
	return snaps, mapStoreError("list snapshots", err)
}

// List reads a page of items.
func (g PersistenceGateway) List(ctx context.Context, query domain.ListQuery) (domain.ItemPage, error) {
	page, err := g.store.List(ctx, query)
	return page, mapStoreError("list items", err)
}

func mapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch domain.KindOf(err) {
	case domain.KindNotFound, domain.KindVersionMismatch, domain.KindAlreadyExists, domain.KindPersistence:
		return err
	default:
		return domain.PersistenceFailure(op, err)
	}
}
