package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/sensingclues/harmonie-grib/internal/domain"
	"github.com/sensingclues/harmonie-grib/internal/observability"
)

var errNoCompressor = errors.New("no compressor configured")

// Publisher compresses finished products into their published paths and
// clears out artifacts left by earlier runs.
type Publisher struct {
	compressor Compressor
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewPublisher creates a Publisher.
func NewPublisher(c Compressor, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{compressor: c, logger: logger, metrics: metrics}
}

// Publish compresses src and renames the compressed file to dst. The
// published name keeps the uncompressed extension.
func (p *Publisher) Publish(ctx context.Context, src, dst string) (domain.Artifact, error) {
	compressed, err := p.Compress(ctx, src)
	if err != nil {
		return domain.Artifact{}, err
	}
	return p.Promote(compressed, dst)
}

// Compress compresses src and returns the compressed sibling, not yet published.
func (p *Publisher) Compress(ctx context.Context, src string) (string, error) {
	if p.compressor == nil {
		return "", errNoCompressor
	}
	compressed, err := p.compressor.Compress(ctx, src)
	if err != nil {
		return "", fmt.Errorf("compress %s: %w", src, err)
	}
	return compressed, nil
}

// Promote renames a compressed file to its published path dst.
func (p *Publisher) Promote(compressed, dst string) (domain.Artifact, error) {
	if err := os.Rename(compressed, dst); err != nil {
		return domain.Artifact{}, fmt.Errorf("publish %s: %w", dst, err)
	}

	a := domain.Artifact{Name: filepath.Base(dst), Path: dst}
	if fi, err := os.Stat(dst); err == nil {
		a.Size = fi.Size()
	}
	p.metrics.ArtifactsPublished.Inc()
	p.logger.Info("artifact published", "path", dst, "bytes", a.Size)
	return a, nil
}

// CleanupStale removes files in dir matching pattern, except the protected
// paths and anything under a protected directory. It returns the removed paths.
func (p *Publisher) CleanupStale(dir, pattern string, protected ...string) ([]string, error) {
	if pattern == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("stale pattern %q: %w", pattern, err)
	}

	guard := make([]string, 0, len(protected))
	for _, path := range protected {
		if abs, err := filepath.Abs(path); err == nil {
			guard = append(guard, abs)
		}
	}

	var (
		removed []string
		result  *multierror.Error
	)
	for _, path := range matches {
		abs, err := filepath.Abs(path)
		if err != nil || isProtected(abs, guard) {
			continue
		}
		fi, err := os.Lstat(path)
		if err != nil || fi.IsDir() {
			continue
		}
		if err := os.Remove(path); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		p.logger.Debug("stale artifact removed", "path", path)
		removed = append(removed, path)
	}
	return removed, result.ErrorOrNil()
}

func isProtected(path string, guard []string) bool {
	for _, g := range guard {
		if path == g || strings.HasPrefix(path, g+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
