// Package attachments releases item attachment binaries held in blob storage.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"

	"itemcore/internal/blob"
	"itemcore/pkg/domain"
)

const keyPrefix = "attachments/"

var _ domain.AttachmentStore = (*Store)(nil)

// Store keeps each attachment under attachments/<id>, with derived renditions
// (thumbnails, previews) under attachments/<id>/.
type Store struct {
	blobs blob.Store
}

// New wraps a blob store.
func New(blobs blob.Store) *Store {
	return &Store{blobs: blobs}
}

// Key returns the blob key of an attachment.
func Key(id string) string {
	return keyPrefix + id
}

// Upload stores attachment content under its id.
func (s *Store) Upload(ctx context.Context, id string, r io.Reader, contentType string) (blob.Info, error) {
	if id == "" {
		return blob.Info{}, fmt.Errorf("attachment id required")
	}
	return s.blobs.Put(ctx, Key(id), r, blob.PutOptions{ContentType: contentType})
}

// Cleanup implements domain.AttachmentStore. Missing attachments are not an
// error; every id is attempted and failures are joined.
func (s *Store) Cleanup(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := s.blobs.Delete(ctx, Key(id)); err != nil {
			errs = append(errs, fmt.Errorf("delete attachment %s: %w", id, err))
			continue
		}
		derived, err := s.blobs.List(ctx, Key(id)+"/")
		if err != nil {
			errs = append(errs, fmt.Errorf("list attachment %s renditions: %w", id, err))
			continue
		}
		for _, info := range derived {
			if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", info.Key, err))
			}
		}
	}
	return errors.Join(errs...)
}
