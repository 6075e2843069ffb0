package core

import (
	"context"
	"encoding/base64"
	"errors"

	"itemcore/internal/filter"
	"itemcore/pkg/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ReadThroughCache is implemented by item caches that can also serve reads.
type ReadThroughCache interface {
	domain.ItemCache
	Lookup(ctx context.Context, id string) (Item, bool)
	Store(ctx context.Context, item Item)
}

// ListRequest selects a page of items with an optional AIP-160 filter.
type ListRequest struct {
	Filter    string
	PageSize  int
	PageToken string
}

// ListResponse is one page of items.
type ListResponse struct {
	Items         []Item
	NextPageToken string
}

// RelatedItem bundles an item with its resolved references and history.
type RelatedItem struct {
	Item                Item
	Dependencies        []Item
	MissingDependencies []string
	LinkedItems         []Item
	MissingLinkedItems  []string
	History             []ItemSnapshot
}

func checkRead(actor Actor) error {
	if actor.ID == "" {
		return domain.PermissionDenied("actor is not authenticated")
	}
	if !actor.Capabilities.HasAny(domain.CapabilityRead, domain.CapabilityWrite, domain.CapabilityAdmin) {
		return domain.PermissionDenied("actor " + actor.ID + " lacks read capability")
	}
	return nil
}

// GetItem returns the current state of an item, served from the cache when possible.
func (s *Service) GetItem(ctx context.Context, id string, actor Actor) (Item, error) {
	var item Item
	err := s.run(ctx, "get_item", spanAttrs("", id), func(ctx context.Context) error {
		if err := checkRead(actor); err != nil {
			return err
		}
		var err error
		item, err = s.getItem(ctx, id)
		return err
	})
	return item, err
}

func (s *Service) getItem(ctx context.Context, id string) (Item, error) {
	cache, cached := s.cache.(ReadThroughCache)
	if cached {
		if item, ok := cache.Lookup(ctx, id); ok {
			return item, nil
		}
	}
	item, err := s.gateway.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if cached {
		cache.Store(ctx, item)
	}
	return item, nil
}

// ItemHistory returns the retained snapshots of an item in version order.
func (s *Service) ItemHistory(ctx context.Context, id string, actor Actor) ([]ItemSnapshot, error) {
	var history []ItemSnapshot
	err := s.run(ctx, "item_history", spanAttrs("", id), func(ctx context.Context) error {
		if err := checkRead(actor); err != nil {
			return err
		}
		var err error
		history, err = s.gateway.Snapshots(ctx, id)
		return err
	})
	return history, err
}

// GetItemWithRelated returns an item together with the items it depends on,
// the items linked to it and its snapshot history. References that no longer
// resolve are listed separately rather than failing the read.
func (s *Service) GetItemWithRelated(ctx context.Context, id string, actor Actor) (RelatedItem, error) {
	var related RelatedItem
	err := s.run(ctx, "get_item_with_related", spanAttrs("", id), func(ctx context.Context) error {
		if err := checkRead(actor); err != nil {
			return err
		}
		item, err := s.getItem(ctx, id)
		if err != nil {
			return err
		}
		related.Item = item
		if related.Dependencies, related.MissingDependencies, err = s.loadReferences(ctx, item.Dependencies); err != nil {
			return err
		}
		if related.LinkedItems, related.MissingLinkedItems, err = s.loadReferences(ctx, item.LinkedItems); err != nil {
			return err
		}
		related.History, err = s.gateway.Snapshots(ctx, id)
		return err
	})
	return related, err
}

func (s *Service) loadReferences(ctx context.Context, ids []string) ([]Item, []string, error) {
	var (
		found   []Item
		missing []string
	)
	for _, ref := range uniqueStrings(ids) {
		item, err := s.getItem(ctx, ref)
		switch {
		case err == nil:
			found = append(found, item)
		case errors.Is(err, domain.ErrNotFound):
			missing = append(missing, ref)
		default:
			return nil, nil, err
		}
	}
	return found, missing, nil
}

// ListItems returns a page of items ordered by id.
func (s *Service) ListItems(ctx context.Context, req ListRequest, actor Actor) (ListResponse, error) {
	var resp ListResponse
	err := s.run(ctx, "list_items", nil, func(ctx context.Context) error {
		if err := checkRead(actor); err != nil {
			return err
		}
		query, err := buildListQuery(req)
		if err != nil {
			return err
		}
		page, err := s.gateway.List(ctx, query)
		if err != nil {
			return err
		}
		resp.Items = page.Items
		if page.NextAfterID != "" {
			resp.NextPageToken = base64.RawURLEncoding.EncodeToString([]byte(page.NextAfterID))
		}
		return nil
	})
	return resp, err
}

func buildListQuery(req ListRequest) (domain.ListQuery, error) {
	var violations []Violation
	query := domain.ListQuery{PageSize: req.PageSize}
	switch {
	case query.PageSize < 0:
		violations = append(violations, Violation{Field: "pageSize", Reason: "must not be negative"})
	case query.PageSize == 0:
		query.PageSize = defaultPageSize
	case query.PageSize > maxPageSize:
		query.PageSize = maxPageSize
	}
	if req.PageToken != "" {
		raw, err := base64.RawURLEncoding.DecodeString(req.PageToken)
		if err != nil || len(raw) == 0 {
			violations = append(violations, Violation{Field: "pageToken", Reason: "is malformed"})
		}
		query.AfterID = string(raw)
	}
	f, err := filter.Parse(req.Filter)
	if err != nil {
		violations = append(violations, Violation{Field: "filter", Reason: err.Error()})
	} else if f != nil {
		query.Predicate = f
	}
	if len(violations) > 0 {
		return domain.ListQuery{}, domain.ValidationFailed(violations)
	}
	return query, nil
}
