// Package blob selects the archive backend used for snapshot and
// reconciliation report exports.
package blob

import (
	"context"
	"fmt"

	"labcore/internal/infra/blob/core"
	"labcore/internal/infra/blob/fs"
	"labcore/internal/infra/blob/memory"
	"labcore/internal/infra/blob/s3"
)

// DriverNone disables archiving.
const DriverNone core.Driver = "none"

// Config selects and parameterizes an archive backend.
type Config struct {
	Driver core.Driver
	FSRoot string
	S3     s3.Config
}

// Open returns the configured store, or (nil, nil) when archiving is disabled.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case core.DriverFilesystem:
		store, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		store, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
