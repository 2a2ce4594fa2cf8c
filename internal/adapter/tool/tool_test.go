package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensingclues/harmonie-grib/internal/domain"
	"github.com/sensingclues/harmonie-grib/internal/observability"
)

// script writes an executable shell script into dir and returns its path.
func script(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestRunner(path string, opts RunnerOptions) (*Runner, *observability.Metrics) {
	m := observability.NewMetrics()
	return NewRunner(path, opts, slog.New(slog.DiscardHandler), m), m
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	path := script(t, dir, "ggrib", "exit 0")

	got, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	t.Setenv("PATH", dir)
	got, err = Resolve("ggrib")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = Resolve("definitely-not-installed-tool")
	var unavailable *domain.ToolUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "definitely-not-installed-tool", unavailable.Tool)

	_, err = Resolve("")
	require.ErrorAs(t, err, &unavailable)
}

func TestRunner_Success(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "args")
	path := script(t, dir, "echoargs", `echo "$@" > "`+out+`"`)

	r, m := newTestRunner(path, RunnerOptions{Timeout: 5 * time.Second})
	require.NoError(t, r.Run(context.Background(), "a", "b c"))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a b c\n", string(got))
	assert.InDelta(t, 1, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("echoargs", "success")), 0)
}

func TestRunner_NonZeroExitNotRetried(t *testing.T) {
	dir := t.TempDir()
	count := filepath.Join(dir, "count")
	path := script(t, dir, "fail", `echo x >> "`+count+`"; echo "bad grid" >&2; exit 3`)

	r, m := newTestRunner(path, RunnerOptions{Timeout: 5 * time.Second, Retries: 2})
	err := r.Run(context.Background(), "in.grb")

	var failure *domain.ToolFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.ExitCode)
	assert.Equal(t, 1, failure.Attempts)
	assert.False(t, failure.TimedOut())
	assert.Equal(t, "bad grid", failure.Stderr)
	assert.Equal(t, []string{"in.grb"}, failure.Args)
	assert.Contains(t, err.Error(), "exit code 3")

	calls, err := os.ReadFile(count)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(calls), "x"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("fail", "failure")), 0)
}

func TestRunner_TimeoutRetriedThenFails(t *testing.T) {
	dir := t.TempDir()
	path := script(t, dir, "slow", "exec sleep 10")

	r, m := newTestRunner(path, RunnerOptions{Timeout: 100 * time.Millisecond, Retries: 1})
	err := r.Run(context.Background())

	var failure *domain.ToolFailureError
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.TimedOut())
	assert.Equal(t, 2, failure.Attempts)
	assert.Contains(t, err.Error(), "timed out")
	assert.InDelta(t, 2, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("slow", "timeout")), 0)
}

func TestRunner_TimeoutThenSuccess(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "seen")
	path := script(t, dir, "flaky", `if [ ! -f "`+marker+`" ]; then touch "`+marker+`"; exec sleep 10; fi
exit 0`)

	r, m := newTestRunner(path, RunnerOptions{Timeout: 200 * time.Millisecond, Retries: 1})
	require.NoError(t, r.Run(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("flaky", "timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("flaky", "success")), 0)
}

func TestRunner_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	path := script(t, dir, "slow", "exec sleep 10")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _ := newTestRunner(path, RunnerOptions{Timeout: time.Second, Retries: 3})
	err := r.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCropper_Crop(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	path := script(t, dir, "ggrib", `echo "$@" > "`+argsFile+`"; cp "$1" "$2"`)

	src := filepath.Join(dir, "temp.grb")
	dst := filepath.Join(dir, "temp_bounds.grb")
	require.NoError(t, os.WriteFile(src, []byte("GRIB"), 0o644))

	r, _ := newTestRunner(path, RunnerOptions{Timeout: 5 * time.Second})
	nl := domain.DefaultRegions()[0]
	require.NoError(t, NewCropper(r).Crop(context.Background(), src, dst, nl.Bounds))

	got, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, src+" "+dst+" 3.071 50.748 7.252 53.761\n", string(got))
	assert.FileExists(t, dst)
}

func TestCropper_NoOutput(t *testing.T) {
	dir := t.TempDir()
	path := script(t, dir, "ggrib", "exit 0")

	r, _ := newTestRunner(path, RunnerOptions{Timeout: 5 * time.Second})
	err := NewCropper(r).Crop(context.Background(), "in", filepath.Join(dir, "out"), domain.DefaultRegions()[1].Bounds)
	assert.ErrorContains(t, err, "produced no output")
}

func TestCompressor_Compress(t *testing.T) {
	dir := t.TempDir()
	// Stand-in for bzip2 -f: replace the file with a .bz2 sibling.
	path := script(t, dir, "bzip2", `[ "$1" = "-f" ] || exit 2; mv "$2" "$2.bz2"`)

	src := filepath.Join(dir, "harmonie_zy_2016-05-10_06.grb")
	require.NoError(t, os.WriteFile(src, []byte("GRIB"), 0o644))

	r, _ := newTestRunner(path, RunnerOptions{Timeout: 5 * time.Second})
	out, err := NewCompressor(r).Compress(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, src+".bz2", out)
	assert.FileExists(t, out)
	assert.NoFileExists(t, src)
}
