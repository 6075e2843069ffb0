// Package memory provides an in-memory implementation of the item store used
// for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"sync"

	"itemcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	items     map[string]domain.Item
	snapshots map[string]map[int64]domain.ItemSnapshot
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Items     map[string]domain.Item           `json:"items"`
	Snapshots map[string][]domain.ItemSnapshot `json:"snapshots"`
}

func newMemoryState() memoryState {
	return memoryState{
		items:     make(map[string]domain.Item),
		snapshots: make(map[string]map[int64]domain.ItemSnapshot),
	}
}

// Store keeps items and their snapshots in maps guarded by a single lock, so
// every operation is atomic.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// ExportState returns a deep copy of the store contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		Items:     make(map[string]domain.Item, len(s.state.items)),
		Snapshots: make(map[string][]domain.ItemSnapshot, len(s.state.snapshots)),
	}
	for id, item := range s.state.items {
		out.Items[id] = item.Clone()
	}
	for id := range s.state.snapshots {
		out.Snapshots[id] = s.snapshotsLocked(id)
	}
	return out
}

// ImportState replaces the store contents with a copy of snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	state := newMemoryState()
	for id, item := range snapshot.Items {
		state.items[id] = item.Clone()
	}
	for id, snaps := range snapshot.Snapshots {
		versions := make(map[int64]domain.ItemSnapshot, len(snaps))
		for _, snap := range snaps {
			versions[snap.Version] = cloneSnapshot(snap)
		}
		state.snapshots[id] = versions
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Get implements domain.PersistentStore.
func (s *Store) Get(ctx context.Context, id string) (domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return domain.Item{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.state.items[id]
	if !ok {
		return domain.Item{}, domain.NotFound(id)
	}
	return item.Clone(), nil
}

// InsertConditional implements domain.PersistentStore.
func (s *Store) InsertConditional(ctx context.Context, item domain.Item) (domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return domain.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.items[item.ID]; exists {
		return domain.Item{}, domain.AlreadyExists(item.ID)
	}
	s.state.items[item.ID] = item.Clone()
	return item.Clone(), nil
}

// UpdateConditional implements domain.PersistentStore.
func (s *Store) UpdateConditional(ctx context.Context, expectedVersion int64, next domain.Item, snapshot *domain.ItemSnapshot) (domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return domain.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.state.items[next.ID]
	if !ok {
		return domain.Item{}, domain.NotFound(next.ID)
	}
	if current.Version != expectedVersion {
		return domain.Item{}, domain.VersionMismatch(next.ID, expectedVersion, current.Version)
	}
	if snapshot != nil {
		versions, ok := s.state.snapshots[snapshot.ItemID]
		if !ok {
			versions = make(map[int64]domain.ItemSnapshot)
			s.state.snapshots[snapshot.ItemID] = versions
		}
		if _, exists := versions[snapshot.Version]; !exists {
			versions[snapshot.Version] = cloneSnapshot(*snapshot)
		}
	}
	s.state.items[next.ID] = next.Clone()
	return next.Clone(), nil
}

// Delete implements domain.PersistentStore. Snapshots are retained.
func (s *Store) Delete(ctx context.Context, id string) (domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return domain.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.state.items[id]
	if !ok {
		return domain.Item{}, domain.NotFound(id)
	}
	delete(s.state.items, id)
	return item, nil
}

// Snapshots implements domain.PersistentStore.
func (s *Store) Snapshots(ctx context.Context, itemID string) ([]domain.ItemSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotsLocked(itemID), nil
}

func (s *Store) snapshotsLocked(itemID string) []domain.ItemSnapshot {
	versions := s.state.snapshots[itemID]
	out := make([]domain.ItemSnapshot, 0, len(versions))
	for _, snap := range versions {
		out = append(out, cloneSnapshot(snap))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// GetSnapshot implements domain.PersistentStore.
func (s *Store) GetSnapshot(ctx context.Context, itemID string, version int64) (domain.ItemSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.ItemSnapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.state.snapshots[itemID][version]
	if !ok {
		err := domain.NotFound(itemID)
		err.Message = "snapshot not found"
		return domain.ItemSnapshot{}, err
	}
	return cloneSnapshot(snap), nil
}

// List implements domain.PersistentStore.
func (s *Store) List(ctx context.Context, query domain.ListQuery) (domain.ItemPage, error) {
	if err := ctx.Err(); err != nil {
		return domain.ItemPage{}, err
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.state.items))
	for id := range s.state.items {
		if id > query.AfterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	candidates := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, s.state.items[id].Clone())
	}
	s.mu.RUnlock()

	return paginate(candidates, query)
}

func paginate(candidates []domain.Item, query domain.ListQuery) (domain.ItemPage, error) {
	var page domain.ItemPage
	for _, item := range candidates {
		if query.Predicate != nil {
			rec, err := item.Record()
			if err != nil {
				return domain.ItemPage{}, err
			}
			if !query.Predicate.Match(rec) {
				continue
			}
		}
		if query.PageSize > 0 && len(page.Items) == query.PageSize {
			page.NextAfterID = page.Items[len(page.Items)-1].ID
			break
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func cloneSnapshot(s domain.ItemSnapshot) domain.ItemSnapshot {
	cp := s
	cp.Item = s.Item.Clone()
	return cp
}
