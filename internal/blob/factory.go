package blob

import (
	"context"
	"fmt"

	"itemcore/internal/config"
	fsstore "itemcore/internal/infra/blob/fs"
	memorystore "itemcore/internal/infra/blob/memory"
	s3store "itemcore/internal/infra/blob/s3"
)

// Open selects a Store implementation from cfg.Driver (fs when empty).
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	driver := Driver(cfg.Driver)
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fsstore.New(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			PathStyle:       cfg.S3UsePathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }
