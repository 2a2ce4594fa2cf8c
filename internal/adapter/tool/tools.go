package tool

import (
	"context"
	"fmt"
	"os"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

// Cropper cuts a GRIB file down to a bounding box with an external tool
// invoked as `tool src dst sw_lng sw_lat ne_lng ne_lat`.
type Cropper struct {
	runner *Runner
}

// NewCropper wraps a runner for the crop executable.
func NewCropper(r *Runner) *Cropper {
	return &Cropper{runner: r}
}

// Crop writes the part of src inside bbox to dst.
func (c *Cropper) Crop(ctx context.Context, src, dst string, bbox domain.BoundingBox) error {
	args := append([]string{src, dst}, bbox.Args()...)
	if err := c.runner.Run(ctx, args...); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("%s produced no output: %w", c.runner.Name(), err)
	}
	return nil
}

// Compressor bzip2-compresses files in place.
type Compressor struct {
	runner *Runner
}

// NewCompressor wraps a runner for the compression executable.
func NewCompressor(r *Runner) *Compressor {
	return &Compressor{runner: r}
}

// Compress replaces src with src+".bz2" and returns the new path. An existing
// .bz2 file is overwritten.
func (c *Compressor) Compress(ctx context.Context, src string) (string, error) {
	if err := c.runner.Run(ctx, "-f", src); err != nil {
		return "", err
	}
	out := src + ".bz2"
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("%s produced no output: %w", c.runner.Name(), err)
	}
	return out, nil
}
