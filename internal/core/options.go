package core

import (
	"time"

	"itemcore/pkg/domain"
)

// Options configures the optional behaviors of a single create or update.
// The zero value runs no processors and no rules, keeps versioning off, fails
// on version conflicts and disables notification, audit and backup.
type Options struct {
	PreProcessors     []Step
	PostProcessors    []Step
	ValidationRules   RuleSet
	Versioning        VersioningOptions
	ConflictStrategy  ConflictStrategy
	Merge             MergeFunc
	Notification      domain.NotificationSettings
	Audit             domain.AuditSettings
	Backup            BackupSettings
	SideEffectTimeout time.Duration
}

// DeleteOptions configures a single delete.
type DeleteOptions struct {
	Notification domain.NotificationSettings
	Audit        domain.AuditSettings
	// BlockOnCleanupFailure aborts the delete when dependent cleanup fails
	// instead of reporting the failure as a warning.
	BlockOnCleanupFailure bool
	SideEffectTimeout     time.Duration
}

// ItemCreateRequest carries the fields of a new item. ID is optional; an id is
// generated when empty.
type ItemCreateRequest struct {
	ID     string
	Fields Record
}

// NewCreateRequest builds a request from a typed item.
func NewCreateRequest(item Item) (ItemCreateRequest, error) {
	rec, err := item.Record()
	if err != nil {
		return ItemCreateRequest{}, err
	}
	for field := range rec {
		if domain.IsSystemField(field) {
			delete(rec, field)
		}
	}
	return ItemCreateRequest{ID: item.ID, Fields: rec}, nil
}

// MutationResult is returned for every committed create or update. Warnings
// list side effects that failed after the commit; Derived is the output of the
// post-processors and is never persisted.
type MutationResult struct {
	Item     Item
	Warnings []Warning
	Derived  Record
}

// Confirmation is returned for a committed delete.
type Confirmation struct {
	ItemID    string
	Version   int64
	DeletedAt time.Time
	Warnings  []Warning
}
