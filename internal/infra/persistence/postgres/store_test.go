package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"itemcore/internal/infra/persistence/postgres/testutil"
	"itemcore/pkg/domain"
)

func openStub(t *testing.T) (*testutil.StubConn, func(context.Context) error) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(testutil.Opener(db))
	t.Cleanup(restore)
	return conn, func(ctx context.Context) error {
		_, err := NewStore(ctx, "")
		return err
	}
}

func TestNewStoreAppliesSchema(t *testing.T) {
	conn, open := openStub(t)
	if err := open(context.Background()); err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if len(conn.Execs) != len(schema) {
		t.Fatalf("expected %d schema statements, got %d", len(schema), len(conn.Execs))
	}
	if !strings.Contains(conn.Execs[0], "BIGINT") || !strings.Contains(conn.Execs[0], "DOUBLE PRECISION") {
		t.Fatalf("expected postgres column types, got %s", conn.Execs[0])
	}
}

func TestNewStoreFailures(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		conn, open := openStub(t)
		conn.FailPing = true
		if err := open(context.Background()); err == nil || !strings.Contains(err.Error(), "ping postgres") {
			t.Fatalf("expected ping error, got %v", err)
		}
	})
	t.Run("schema", func(t *testing.T) {
		conn, open := openStub(t)
		conn.FailExec = true
		if err := open(context.Background()); err == nil || !strings.Contains(err.Error(), "apply postgres schema") {
			t.Fatalf("expected schema error, got %v", err)
		}
	})
	t.Run("open", func(t *testing.T) {
		restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, fmt.Errorf("boom") })
		defer restore()
		if _, err := NewStore(context.Background(), "postgres://example"); err == nil || !strings.Contains(err.Error(), "open postgres") {
			t.Fatalf("expected open error, got %v", err)
		}
	})
}

func TestStoreInsertAndGetUseDollarPlaceholders(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(testutil.Opener(db))
	defer restore()
	store, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	item := domain.Item{ID: "item-1", Name: "Pump", Status: "open", Version: 1, CreatedAt: now, UpdatedAt: now}
	if _, err := store.InsertConditional(ctx, item); err != nil {
		t.Fatalf("InsertConditional: %v", err)
	}
	last := conn.Execs[len(conn.Execs)-1]
	if !strings.Contains(last, "$16") {
		t.Fatalf("expected sixteen dollar placeholders, got %s", last)
	}

	got, err := store.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Pump" || got.Version != 1 {
		t.Fatalf("unexpected item %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	conn.DuplicateErr = &pgconn.PgError{Code: uniqueViolation, Message: "duplicate key value"}
	if _, err := store.InsertConditional(ctx, item); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"unique":  {err: &pgconn.PgError{Code: "23505"}, want: true},
		"wrapped": {err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		"other":   {err: &pgconn.PgError{Code: "23503"}},
		"plain":   {err: errors.New("duplicate")},
	}
	for name, tc := range cases {
		if got := isUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, got)
		}
	}
}
