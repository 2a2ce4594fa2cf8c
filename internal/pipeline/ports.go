package pipeline

import (
	"context"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

// Codec opens forecast files and encodes records for the output streams.
type Codec interface {
	Open(path string) ([]domain.Record, error)
	Serialize(rec domain.Record) ([]byte, error)
}

// Cropper cuts src down to bbox, writing dst.
type Cropper interface {
	Crop(ctx context.Context, src, dst string, bbox domain.BoundingBox) error
}

// Compressor compresses src in place and returns the compressed sibling's path.
type Compressor interface {
	Compress(ctx context.Context, src string) (string, error)
}

// Notifier announces a published run to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, m domain.RunManifest) error
}

// Ledger records published runs for bookkeeping.
type Ledger interface {
	RecordRun(ctx context.Context, m domain.RunManifest) error
}
