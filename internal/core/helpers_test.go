package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"itemcore/internal/core"
	memory "itemcore/internal/infra/persistence/memory"
	"itemcore/pkg/domain"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func fixedClock() core.Clock {
	return core.ClockFunc(func() time.Time { return fixedNow })
}

func writer(id string) core.Actor {
	return core.Actor{ID: id, Capabilities: domain.NewCapabilitySet(domain.CapabilityWrite)}
}

func admin(id string) core.Actor {
	return core.Actor{ID: id, Capabilities: domain.NewCapabilitySet(domain.CapabilityAdmin)}
}

func newTestService(t *testing.T, opts ...core.ServiceOption) (*core.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	opts = append([]core.ServiceOption{core.WithClock(fixedClock())}, opts...)
	return core.NewService(store, opts...), store
}

func mustCreate(t *testing.T, svc *core.Service, id string, fields core.Record, actor core.Actor) core.Item {
	t.Helper()
	if fields == nil {
		fields = core.Record{}
	}
	if _, ok := fields["name"]; !ok {
		fields["name"] = "Item " + id
	}
	res, err := svc.CreateItem(context.Background(), core.ItemCreateRequest{ID: id, Fields: fields}, actor, core.Options{})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return res.Item
}

func wantKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s, got %s (%v)", kind, got, err)
	}
}

func violationFields(err error) map[string]string {
	var e *domain.Error
	out := map[string]string{}
	if errors.As(err, &e) {
		for _, v := range e.Violations {
			out[v.Field] = v.Reason
		}
	}
	return out
}

type recordingChannel struct {
	name string
	err  error
	wait bool

	mu       sync.Mutex
	payloads []domain.NotificationPayload
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(ctx context.Context, _ domain.NotificationSettings, payload domain.NotificationPayload) error {
	if c.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	c.mu.Lock()
	c.payloads = append(c.payloads, payload)
	c.mu.Unlock()
	return c.err
}

func (c *recordingChannel) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.payloads))
	for _, p := range c.payloads {
		out = append(out, p.Event)
	}
	return out
}

type recordingSink struct {
	err      error
	mu       sync.Mutex
	entries  []domain.AuditEntry
	archived []string
}

func (s *recordingSink) Append(_ context.Context, entry domain.AuditEntry) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *recordingSink) Archive(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived = append(s.archived, itemID)
	return nil
}

type recordingCache struct {
	mu          sync.Mutex
	items       map[string]core.Item
	invalidated []string
	hits        int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{items: map[string]core.Item{}}
}

func (c *recordingCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
}

func (c *recordingCache) Lookup(_ context.Context, id string) (core.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if ok {
		c.hits++
	}
	return item, ok
}

func (c *recordingCache) Store(_ context.Context, item core.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
}

type failingAttachments struct {
	err   error
	calls [][]string
}

func (a *failingAttachments) Cleanup(_ context.Context, ids []string) error {
	a.calls = append(a.calls, append([]string(nil), ids...))
	return a.err
}

type stubResolver struct {
	missing map[string]bool
	err     error
}

func (r stubResolver) Resolve(_ context.Context, ids []string) ([]string, []string, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	var resolved, unresolved []string
	for _, id := range ids {
		if r.missing[id] {
			unresolved = append(unresolved, id)
		} else {
			resolved = append(resolved, id)
		}
	}
	return resolved, unresolved, nil
}

type backupFunc func(ctx context.Context, item domain.Item) error

func (f backupFunc) Backup(ctx context.Context, item domain.Item) error { return f(ctx, item) }

// stuckCollaborator ignores its context and returns only after the test ends.
type stuckCollaborator struct {
	release chan struct{}
}

func newStuckCollaborator(t *testing.T) *stuckCollaborator {
	t.Helper()
	s := &stuckCollaborator{release: make(chan struct{})}
	t.Cleanup(func() { close(s.release) })
	return s
}

func (s *stuckCollaborator) Name() string { return "stuck" }

func (s *stuckCollaborator) Send(context.Context, domain.NotificationSettings, domain.NotificationPayload) error {
	<-s.release
	return nil
}

func (s *stuckCollaborator) Append(context.Context, domain.AuditEntry) error {
	<-s.release
	return nil
}

func (s *stuckCollaborator) Backup(context.Context, domain.Item) error {
	<-s.release
	return nil
}

func (s *stuckCollaborator) Cleanup(context.Context, []string) error {
	<-s.release
	return nil
}
