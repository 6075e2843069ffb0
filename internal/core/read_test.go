package core_test

import (
	"context"
	"fmt"
	"testing"

	"itemcore/internal/core"
	"itemcore/pkg/domain"
)

func TestReadsRequireReadCapability(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "item-1", nil, writer("alice"))

	nobody := core.Actor{ID: "eve", Capabilities: domain.NewCapabilitySet(domain.CapabilityApprover)}
	_, err := svc.GetItem(ctx, "item-1", nobody)
	wantKind(t, err, domain.KindPermissionDenied)
	_, err = svc.ListItems(ctx, core.ListRequest{}, core.Actor{})
	wantKind(t, err, domain.KindPermissionDenied)

	reader := core.Actor{ID: "eve", Capabilities: domain.NewCapabilitySet(domain.CapabilityRead)}
	item, err := svc.GetItem(ctx, "item-1", reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if item.ID != "item-1" {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestListItemsFiltersAndPages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		status := "open"
		if i%2 == 1 {
			status = "closed"
		}
		mustCreate(t, svc, fmt.Sprintf("item-%d", i), core.Record{"status": status}, writer("alice"))
	}

	var ids []string
	req := core.ListRequest{Filter: `status = "open"`, PageSize: 2}
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatalf("pagination did not terminate")
		}
		resp, err := svc.ListItems(ctx, req, writer("alice"))
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, item := range resp.Items {
			ids = append(ids, item.ID)
		}
		if resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	want := []string{"item-0", "item-2", "item-4"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("listed %v, want %v", ids, want)
	}
}

func TestListItemsRejectsBadRequests(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, req := range []core.ListRequest{
		{Filter: `nonexistent = "x"`},
		{PageSize: -1},
		{PageToken: "***"},
	} {
		_, err := svc.ListItems(ctx, req, writer("alice"))
		wantKind(t, err, domain.KindValidationFailed)
	}
}

func TestGetItemWithRelated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "dep-1", nil, writer("alice"))
	mustCreate(t, svc, "link-1", nil, writer("alice"))
	mustCreate(t, svc, "item-1", core.Record{
		"dependencies": []any{"dep-1", "dep-gone"},
		"linkedItems":  []any{"link-1"},
	}, writer("alice"))
	if _, err := svc.UpdateItem(ctx, "item-1", core.Record{"status": "x"}, 1, core.Options{Versioning: core.VersioningOptions{Enabled: true}}, writer("alice")); err != nil {
		t.Fatalf("update: %v", err)
	}

	related, err := svc.GetItemWithRelated(ctx, "item-1", writer("bob"))
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if related.Item.Version != 2 {
		t.Fatalf("unexpected item %+v", related.Item)
	}
	if len(related.Dependencies) != 1 || related.Dependencies[0].ID != "dep-1" {
		t.Fatalf("unexpected dependencies %+v", related.Dependencies)
	}
	if len(related.MissingDependencies) != 1 || related.MissingDependencies[0] != "dep-gone" {
		t.Fatalf("unexpected missing dependencies %v", related.MissingDependencies)
	}
	if len(related.LinkedItems) != 1 || len(related.MissingLinkedItems) != 0 {
		t.Fatalf("unexpected links %+v / %v", related.LinkedItems, related.MissingLinkedItems)
	}
	if len(related.History) != 1 || related.History[0].Version != 1 {
		t.Fatalf("unexpected history %+v", related.History)
	}
}
