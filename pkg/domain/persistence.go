package domain

import "context"

// PersistentStore is the opaque keyed store behind the persistence gateway.
// Implementations make each call atomic and report failures with the typed
// errors from this package: NotFound, VersionMismatch and AlreadyExists for
// expected outcomes, anything else is treated as a persistence failure.
type PersistentStore interface {
	// Get returns the stored item or a NotFound error.
	Get(ctx context.Context, id string) (Item, error)
	// InsertConditional stores a new item, failing with AlreadyExists when the id is taken.
	InsertConditional(ctx context.Context, item Item) (Item, error)
	// UpdateConditional replaces the item only if its stored version equals
	// expectedVersion (compare-and-swap). When snapshot is non-nil it is written
	// in the same atomic scope, before the replacement.
	UpdateConditional(ctx context.Context, expectedVersion int64, next Item, snapshot *ItemSnapshot) (Item, error)
	// Delete removes the item and returns its last stored state, or NotFound.
	Delete(ctx context.Context, id string) (Item, error)
	// Snapshots lists the retained snapshots of an item in ascending version order.
	Snapshots(ctx context.Context, itemID string) ([]ItemSnapshot, error)
	// GetSnapshot returns the snapshot keyed by (itemID, version) or NotFound.
	GetSnapshot(ctx context.Context, itemID string, version int64) (ItemSnapshot, error)
	// List returns a page of items ordered by id.
	List(ctx context.Context, query ListQuery) (ItemPage, error)
}

// Predicate selects items during listing.
type Predicate interface {
	Match(rec Record) bool
}

// ListQuery describes a page request. A nil Predicate selects every item.
type ListQuery struct {
	Predicate Predicate
	PageSize  int
	AfterID   string
}

// ItemPage is one page of a listing. NextAfterID is empty on the last page.
type ItemPage struct {
	Items       []Item
	NextAfterID string
}
