// Package blob is the entry point for blob storage. Callers depend on the
// Store interface re-exported here; only this package opens backends.
package blob

import (
	"itemcore/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	// ErrNotFound reports a missing key.
	ErrNotFound = core.ErrNotFound
	// ErrExists reports a create-only write to a taken key.
	ErrExists = core.ErrExists
)
