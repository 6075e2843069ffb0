package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"itemcore/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "backups/a/v1.json", strings.NewReader(`{"id":"a"}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"item": "a"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 10 || info.Metadata["item"] != "a" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "backups/a/v1.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}

	got, rc, err := s.Get(ctx, "backups/a/v1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"id":"a"}` || got.ContentType != "application/json" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}
	got.Metadata["item"] = "mutated"
	again, rc2, _ := s.Get(ctx, "backups/a/v1.json")
	_ = rc2.Close()
	if again.Metadata["item"] != "a" {
		t.Fatalf("expected metadata isolation")
	}

	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, key := range []string{"attachments/b", "attachments/a", "backups/a/v1.json"} {
		if _, err := s.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "attachments/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "attachments/a" {
		t.Fatalf("expected sorted attachment keys, got %+v", infos)
	}
	existed, err := s.Delete(ctx, "attachments/a")
	if err != nil || !existed {
		t.Fatalf("expected delete to report existing blob, got %v %v", existed, err)
	}
	existed, err = s.Delete(ctx, "attachments/a")
	if err != nil || existed {
		t.Fatalf("expected second delete to report missing blob, got %v %v", existed, err)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().List(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
