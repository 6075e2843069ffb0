// Package persistence selects the item store backend from configuration.
package persistence

import (
	"context"
	"fmt"

	"itemcore/internal/config"
	"itemcore/internal/infra/persistence/memory"
	"itemcore/internal/infra/persistence/postgres"
	"itemcore/internal/infra/persistence/sqlite"
	"itemcore/pkg/domain"
)

// Handle bundles an opened store with the audit sink sharing its database,
// when the backend has one.
type Handle struct {
	Store domain.PersistentStore
	// Audit is nil for backends without durable audit storage.
	Audit domain.AuditSink
	close func() error
}

// Close releases the backend.
func (h *Handle) Close() error {
	if h == nil || h.close == nil {
		return nil
	}
	return h.close()
}

// Open constructs the store named by cfg.StorageDriver.
func Open(ctx context.Context, cfg config.Config) (*Handle, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return &Handle{Store: memory.NewStore()}, nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: store, Audit: store, close: store.Close}, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: store, Audit: store, close: store.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
