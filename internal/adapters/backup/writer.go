// Package backup copies committed items to blob storage as JSON documents.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"itemcore/internal/blob"
	"itemcore/pkg/domain"
)

const contentType = "application/json"

var _ domain.BackupWriter = (*Writer)(nil)

// Writer stores one immutable document per committed item version.
type Writer struct {
	blobs blob.Store
}

// New wraps a blob store.
func New(blobs blob.Store) *Writer {
	return &Writer{blobs: blobs}
}

// Key returns the blob key of an item version backup.
func Key(itemID string, version int64) string {
	return fmt.Sprintf("backups/%s/v%d.json", itemID, version)
}

// Backup implements domain.BackupWriter. Re-writing an existing version is a no-op.
func (w *Writer) Backup(ctx context.Context, item domain.Item) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode backup %s: %w", item.ID, err)
	}
	_, err = w.blobs.Put(ctx, Key(item.ID, item.Version), bytes.NewReader(raw), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"item": item.ID, "version": fmt.Sprint(item.Version)},
	})
	if err != nil && !errors.Is(err, blob.ErrExists) {
		return fmt.Errorf("write backup %s: %w", item.ID, err)
	}
	return nil
}

// Restore reads a backed-up item version.
func (w *Writer) Restore(ctx context.Context, itemID string, version int64) (domain.Item, error) {
	_, rc, err := w.blobs.Get(ctx, Key(itemID, version))
	if err != nil {
		return domain.Item{}, fmt.Errorf("read backup %s v%d: %w", itemID, version, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return domain.Item{}, fmt.Errorf("read backup %s v%d: %w", itemID, version, err)
	}
	var item domain.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.Item{}, fmt.Errorf("decode backup %s v%d: %w", itemID, version, err)
	}
	return item, nil
}
