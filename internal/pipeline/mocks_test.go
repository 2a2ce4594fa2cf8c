package pipeline_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensingclues/harmonie-grib/internal/domain"
	"github.com/sensingclues/harmonie-grib/internal/observability"
	"github.com/sensingclues/harmonie-grib/internal/pipeline"
)

var testRunTime = time.Date(2016, time.May, 10, 6, 0, 0, 0, time.UTC)

const testLabel = "2016-05-10_06"

// --- mocks ---

// jsonCodec stores a forecast file as a JSON array of records and encodes
// each output record as one JSON line.
type jsonCodec struct{}

func (jsonCodec) Open(path string) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []domain.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (jsonCodec) Serialize(rec domain.Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

type cropCall struct {
	src  string
	dst  string
	args []string
}

// mockCropper copies src to dst and fails for the configured sources.
type mockCropper struct {
	mu    sync.Mutex
	calls []cropCall
	fail  func(src string, bbox domain.BoundingBox) bool
}

func (m *mockCropper) Crop(_ context.Context, src, dst string, bbox domain.BoundingBox) error {
	m.mu.Lock()
	m.calls = append(m.calls, cropCall{src: src, dst: dst, args: bbox.Args()})
	m.mu.Unlock()

	if m.fail != nil && m.fail(src, bbox) {
		return &domain.ToolFailureError{Tool: "ggrib", Args: bbox.Args(), ExitCode: 1}
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// mockCompressor renames src to src.bz2 like `bzip2 -f`.
type mockCompressor struct {
	mu     sync.Mutex
	inputs []string
	failOn string
}

func (m *mockCompressor) Compress(_ context.Context, src string) (string, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, filepath.Base(src))
	m.mu.Unlock()

	if m.failOn != "" && filepath.Base(src) == m.failOn {
		return "", errors.New("bzip2: disk full")
	}
	out := src + ".bz2"
	return out, os.Rename(src, out)
}

type mockNotifier struct {
	got []domain.RunManifest
	err error
}

func (m *mockNotifier) Notify(_ context.Context, man domain.RunManifest) error {
	m.got = append(m.got, man)
	return m.err
}

type mockLedger struct {
	got []domain.RunManifest
}

func (m *mockLedger) RecordRun(_ context.Context, man domain.RunManifest) error {
	m.got = append(m.got, man)
	return nil
}

// --- fixtures ---

type testEnv struct {
	root    string
	opts    pipeline.Options
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	opts := pipeline.Options{
		InputDir:      filepath.Join(root, "tmp"),
		InputPattern:  "*_GB",
		WorkDir:       filepath.Join(root, "tmp"),
		DataDir:       filepath.Join(root, "data"),
		StaleDir:      root,
		StalePattern:  "harm36_v1_*.grb.bz2",
		ExpectedFiles: 49,
		ProductPrefix: "harmonie_zy",
		Regions:       domain.DefaultRegions(),
	}
	require.NoError(t, os.MkdirAll(opts.InputDir, 0o755))
	return &testEnv{root: root, opts: opts, metrics: observability.NewMetrics()}
}

func (e *testEnv) pipeline(deps pipeline.Deps) *pipeline.Pipeline {
	if deps.Codec == nil {
		deps.Codec = jsonCodec{}
	}
	return pipeline.New(deps, e.opts, slog.New(slog.DiscardHandler), e.metrics)
}

func inputName(hour int) string {
	return fmt.Sprintf("harm36_v1_ned_surface_2016051006_%03d_GB", hour)
}

func fileRecords(hour int) []domain.Record {
	rec := func(param int, values ...float64) domain.Record {
		return domain.Record{
			ParameterID:  param,
			LevelType:    domain.LevelHeightAboveGround,
			CentreID:     99,
			ProcessID:    1,
			TableVersion: 253,
			RefTime:      testRunTime,
			ForecastHour: hour,
			Grid:         domain.Grid{Ni: 2, Nj: 1, Values: values},
		}
	}
	precip := rec(domain.ParamPrecipitation, 0.001, 0.002)
	precip.Level = 456
	return []domain.Record{
		rec(domain.ParamPressure, 101325, 101300),
		rec(domain.ParamRelativeHumidity, 0.5, 0.75),
		rec(domain.ParamTemperature, 285, 286),
		rec(domain.ParamUWind, 3, 4),
		rec(domain.ParamVWind, 4, 3),
		precip,
		rec(domain.ParamUGust, 6, 8),
		rec(domain.ParamVGust, 8, 6),
	}
}

// writeInputs writes n forecast files, letting edit alter any file's records.
func (e *testEnv) writeInputs(t *testing.T, n int, edit func(hour int, recs []domain.Record) []domain.Record) {
	t.Helper()
	for hour := range n {
		recs := fileRecords(hour)
		if edit != nil {
			recs = edit(hour, recs)
		}
		data, err := json.Marshal(recs)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(e.opts.InputDir, inputName(hour)), data, 0o644))
	}
}

func (e *testEnv) remainingInputs(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(e.opts.InputDir, "*_GB"))
	require.NoError(t, err)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	return names
}

func (e *testEnv) outputPath(name string) string {
	return filepath.Join(e.opts.DataDir, testLabel, name)
}

// readStream decodes a JSON-lines stream written with jsonCodec.
func readStream(t *testing.T, path string) []domain.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var recs []domain.Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r domain.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	require.NoError(t, sc.Err())
	return recs
}
