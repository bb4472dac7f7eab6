package blob

import (
	"context"

	infraS3 "mfestate/internal/infra/blob/s3"
)

// S3Config holds S3 or MinIO connection settings.
type S3Config = infraS3.Config

// NewS3 connects to the bucket named in cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 store whose HTTP transport is an
// in-process fake bucket.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
