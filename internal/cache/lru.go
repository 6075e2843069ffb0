// Package cache provides the bounded read cache the item service invalidates
// after every committed mutation.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"itemcore/pkg/domain"
)

var _ domain.ItemCache = (*LRU)(nil)

// LRU is a size-bounded item cache keyed by item id. Values are cloned on the
// way in and out so callers never share facet storage with the cache.
type LRU struct {
	items *lru.Cache[string, domain.Item]
}

// NewLRU builds a cache holding at most size items.
func NewLRU(size int) (*LRU, error) {
	items, err := lru.New[string, domain.Item](size)
	if err != nil {
		return nil, fmt.Errorf("create item cache: %w", err)
	}
	return &LRU{items: items}, nil
}

// Invalidate implements domain.ItemCache.
func (c *LRU) Invalidate(_ context.Context, id string) {
	c.items.Remove(id)
}

// Lookup returns the cached item.
func (c *LRU) Lookup(_ context.Context, id string) (domain.Item, bool) {
	item, ok := c.items.Get(id)
	if !ok {
		return domain.Item{}, false
	}
	return item.Clone(), true
}

// Store caches item under its id.
func (c *LRU) Store(_ context.Context, item domain.Item) {
	c.items.Add(item.ID, item.Clone())
}

// Len reports the number of cached items.
func (c *LRU) Len() int {
	return c.items.Len()
}
