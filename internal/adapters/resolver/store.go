// Package resolver checks item references against the item store.
package resolver

import (
	"context"
	"errors"

	"itemcore/pkg/domain"
)

var _ domain.DependencyResolver = (*StoreResolver)(nil)

// StoreResolver resolves ids by reading them from a PersistentStore.
type StoreResolver struct {
	store domain.PersistentStore
}

// New builds a resolver over store.
func New(store domain.PersistentStore) *StoreResolver {
	return &StoreResolver{store: store}
}

// Resolve implements domain.DependencyResolver. Duplicate ids are reported once.
func (r *StoreResolver) Resolve(ctx context.Context, ids []string) (resolved, unresolved []string, err error) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := r.store.Get(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				unresolved = append(unresolved, id)
				continue
			}
			return nil, nil, err
		}
		resolved = append(resolved, id)
	}
	return resolved, unresolved, nil
}
