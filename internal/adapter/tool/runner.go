// Package tool runs the external cropping and compression executables.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/sensingclues/harmonie-grib/internal/domain"
	"github.com/sensingclues/harmonie-grib/internal/observability"
)

const (
	maxStderr     = 2048
	maxRetryDelay = 30 * time.Second
)

// Resolve finds an executable once at startup. Bare names are looked up in
// PATH; paths are checked for the executable bit.
func Resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &domain.ToolUnavailableError{Tool: name, Err: errors.New("not configured")}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &domain.ToolUnavailableError{Tool: name, Err: err}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// RunnerOptions tunes subprocess invocation.
type RunnerOptions struct {
	Timeout    time.Duration // per attempt; zero disables
	Retries    int           // extra attempts after a timeout
	RetryDelay time.Duration
	Clock      clockwork.Clock
}

// Runner invokes one resolved executable with a per-attempt timeout. Timeouts
// are treated as transient and retried; non-zero exits are not.
type Runner struct {
	path    string
	name    string
	opts    RunnerOptions
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRunner creates a Runner for the executable at path.
func NewRunner(path string, opts RunnerOptions, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Runner{
		path:    path,
		name:    filepath.Base(path),
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// Name is the executable's base name.
func (r *Runner) Name() string { return r.name }

// Run executes the tool with args, returning *domain.ToolFailureError on a
// non-zero exit or when every attempt timed out.
func (r *Runner) Run(ctx context.Context, args ...string) error {
	attempts := r.opts.Retries + 1
	delay := r.opts.RetryDelay
	var last *domain.ToolFailureError

	for attempt := 1; attempt <= attempts; attempt++ {
		err := r.runOnce(ctx, args)
		if err == nil {
			r.metrics.ToolInvocations.WithLabelValues(r.name, "success").Inc()
			return nil
		}

		var failure *domain.ToolFailureError
		if !errors.As(err, &failure) {
			r.metrics.ToolInvocations.WithLabelValues(r.name, "failure").Inc()
			return err
		}
		failure.Attempts = attempt
		last = failure

		if !failure.TimedOut() {
			r.metrics.ToolInvocations.WithLabelValues(r.name, "failure").Inc()
			return failure
		}
		r.metrics.ToolInvocations.WithLabelValues(r.name, "timeout").Inc()
		if attempt == attempts {
			break
		}

		r.logger.Warn("external tool timed out, retrying",
			"tool", r.name,
			"attempt", attempt,
			"timeout", r.opts.Timeout,
			"backoff", delay,
		)
		if !retry.SleepWithContext(ctx, delay) || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", r.name, context.Cause(ctx))
		}
		delay = retry.NextBackoff(delay, maxRetryDelay)
	}
	return last
}

func (r *Runner) runOnce(ctx context.Context, args []string) error {
	runCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := r.opts.Clock.Now()
	err := cmd.Run()
	r.metrics.ToolDuration.WithLabelValues(r.name).Observe(r.opts.Clock.Since(start).Seconds())

	if s := strings.TrimSpace(stderr.String()); s != "" {
		r.logger.Debug("external tool stderr", "tool", r.name, "stderr", s)
	}
	if err == nil {
		return nil
	}

	failure := &domain.ToolFailureError{
		Tool:     r.name,
		Args:     args,
		ExitCode: -1,
		Stderr:   truncate(strings.TrimSpace(stderr.String()), maxStderr),
		Err:      err,
	}
	if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		failure.Timeout = r.opts.Timeout
		return failure
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", r.name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.ExitCode = exitErr.ExitCode()
	}
	return failure
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
