package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"itemcore/internal/blob/core"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	info, err := s.Put(ctx, "backups/item-1/v1.json", strings.NewReader(`{"id":"item-1"}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"version": "1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 15 || len(info.ETag) != 64 {
		t.Fatalf("unexpected info %+v", info)
	}

	got, rc, err := s.Get(ctx, "backups/item-1/v1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"id":"item-1"}` {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ETag != info.ETag || got.Metadata["version"] != "1" || got.ContentType != "application/json" {
		t.Fatalf("unexpected meta %+v", got)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if _, err := s.Put(ctx, "attachments/a", strings.NewReader("one"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "attachments/a", strings.NewReader("two"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	_, rc, err := s.Get(ctx, "attachments/a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	if body, _ := io.ReadAll(rc); string(body) != "one" {
		t.Fatalf("expected original content, got %q", body)
	}
}

func TestRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, key := range []string{"", " ", "../escape", "/abs", "a/b.meta"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, key := range []string{"attachments/b", "attachments/a/thumb", "backups/x/v1.json"} {
		if _, err := s.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "attachments/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "attachments/a/thumb" || infos[1].Key != "attachments/b" {
		t.Fatalf("unexpected listing %+v", infos)
	}

	existed, err := s.Delete(ctx, "attachments/b")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	if _, err := os.Stat(filepath.Join(s.root, "attachments", "b.meta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected sidecar removed, got %v", err)
	}
	existed, err = s.Delete(ctx, "attachments/b")
	if err != nil || existed {
		t.Fatalf("expected missing delete to be a no-op, got %v %v", existed, err)
	}
	if _, _, err := s.Get(ctx, "attachments/b"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewDefaultsRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.root != defaultRoot {
		t.Fatalf("expected default root, got %s", s.root)
	}
	if s.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
}
