package blob

import (
	"context"

	"mfestate/pkg/domain"
)

// Config selects and parameterises a blob driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the driver named by cfg.Driver; empty means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, domain.ErrUnknownDriver{Kind: "blob", Name: string(cfg.Driver)}
}
