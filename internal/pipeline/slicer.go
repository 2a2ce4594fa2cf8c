package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/sensingclues/harmonie-grib/internal/domain"
	"github.com/sensingclues/harmonie-grib/internal/observability"
)

// StreamSource is a finished stream file to crop.
type StreamSource struct {
	Name domain.StreamName
	Path string
}

// Slicer produces the regional crops of the merged streams.
type Slicer struct {
	cropper   Cropper
	publisher *Publisher
	scratch   string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewSlicer creates a Slicer that crops into scratch before publishing.
func NewSlicer(c Cropper, pub *Publisher, scratch string, logger *slog.Logger, metrics *observability.Metrics) *Slicer {
	return &Slicer{
		cropper:   c,
		publisher: pub,
		scratch:   scratch,
		logger:    logger,
		metrics:   metrics,
	}
}

// Slice crops src to region and returns the path of the uncompressed crop.
// The crop is written to the scratch file and is overwritten by the next call.
func (s *Slicer) Slice(ctx context.Context, src string, region domain.Region) (string, error) {
	_ = os.Remove(s.scratch)
	if err := s.cropper.Crop(ctx, src, s.scratch, region.Bounds); err != nil {
		return "", fmt.Errorf("crop %s to %s: %w", src, region.Name, err)
	}
	return s.scratch, nil
}

// SliceAll crops every source to every region, region by region, and
// publishes each crop under namer. A failed crop skips only that artifact;
// the returned error aggregates every failure.
func (s *Slicer) SliceAll(ctx context.Context, sources []StreamSource, regions []domain.Region, namer domain.ArtifactNamer) ([]domain.Artifact, []string, error) {
	var (
		artifacts []domain.Artifact
		skipped   []string
		result    *multierror.Error
	)

	for _, region := range regions {
		for _, src := range sources {
			name := domain.CropName(src.Name, region.Name)
			a, err := s.sliceOne(ctx, src, region, namer.Variant(name))
			if err != nil {
				s.metrics.Slices.WithLabelValues("failed").Inc()
				s.logger.Warn("regional product skipped",
					"region", region.Name,
					"stream", src.Name,
					"error", err,
				)
				skipped = append(skipped, name)
				result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
				if ctx.Err() != nil {
					return artifacts, skipped, result.ErrorOrNil()
				}
				continue
			}
			s.metrics.Slices.WithLabelValues("published").Inc()
			artifacts = append(artifacts, a)
		}
	}

	return artifacts, skipped, result.ErrorOrNil()
}

func (s *Slicer) sliceOne(ctx context.Context, src StreamSource, region domain.Region, dst string) (domain.Artifact, error) {
	cropped, err := s.Slice(ctx, src.Path, region)
	if err != nil {
		return domain.Artifact{}, err
	}
	a, err := s.publisher.Publish(ctx, cropped, dst)
	if err != nil {
		_ = os.Remove(cropped)
		return domain.Artifact{}, err
	}
	a.Stream = src.Name
	a.Region = region.Name
	return a, nil
}
