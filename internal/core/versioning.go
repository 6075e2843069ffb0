package core

import "time"

// VersioningOptions controls snapshot capture for a single update.
type VersioningOptions struct {
	Enabled bool
}

// VersioningService captures immutable copies of prior item state.
type VersioningService struct{}

// Snapshot captures current as it was read at the start of the pipeline.
// Persisting the snapshot is the gateway's job, in the same atomic write as
// the update that supersedes it.
func (VersioningService) Snapshot(current Item, actorID string, at time.Time) ItemSnapshot {
	return ItemSnapshot{
		ItemID:     current.ID,
		Version:    current.Version,
		Item:       current.Clone(),
		CapturedAt: at.UTC(),
		CapturedBy: actorID,
	}
}
