package pipeline_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensingclues/harmonie-grib/internal/observability"
	"github.com/sensingclues/harmonie-grib/internal/pipeline"
)

func TestStream_AppendMarkRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp.grb")
	s, err := pipeline.CreateStream(path)
	require.NoError(t, err)

	require.NoError(t, s.Append([]byte("aaa")))
	mark := s.Mark()
	require.NoError(t, s.Append([]byte("bb")))
	require.NoError(t, s.Append([]byte("c")))
	assert.Equal(t, 3, s.Records())

	require.NoError(t, s.Rollback(mark))
	assert.Equal(t, 1, s.Records())
	assert.Equal(t, int64(3), s.Size())

	require.NoError(t, s.Append([]byte("dd")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "aaadd", string(data))
	assert.Equal(t, 2, s.Records())

	assert.Error(t, s.Append([]byte("x")))
}

func TestCreateStream_Truncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp_wind.grb")
	require.NoError(t, os.WriteFile(path, []byte("left over from an aborted run"), 0o644))

	s, err := pipeline.CreateStream(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, fi.Size())
}

func TestPublisher_CleanupStale(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "2016-05-10_06")
	require.NoError(t, os.MkdirAll(runDir, 0o755))

	write := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		return p
	}
	primary := write("temp.grb")
	wind := write("temp_wind.grb")
	old := write("harm36_v1_2016050918.grb")
	keep := write("notes.txt")

	pub := pipeline.NewPublisher(&mockCompressor{}, slog.New(slog.DiscardHandler), observability.NewMetrics())

	removed, err := pub.CleanupStale(dir, "*.grb", primary, wind, runDir)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, removed)
	assert.FileExists(t, primary)
	assert.FileExists(t, wind)
	assert.FileExists(t, keep)
	assert.DirExists(t, runDir)

	// Running again is a no-op.
	removed, err = pub.CleanupStale(dir, "*.grb", primary, wind, runDir)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPublisher_Publish(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "temp.grb")
	require.NoError(t, os.WriteFile(src, []byte("GRIB....7777"), 0o644))
	dst := filepath.Join(dir, "harmonie_zy_2016-05-10_06.grb")

	metrics := observability.NewMetrics()
	pub := pipeline.NewPublisher(&mockCompressor{}, slog.New(slog.DiscardHandler), metrics)

	a, err := pub.Publish(t.Context(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, "harmonie_zy_2016-05-10_06.grb", a.Name)
	assert.Equal(t, dst, a.Path)
	assert.Equal(t, int64(12), a.Size)
	assert.NoFileExists(t, src)
	assert.NoFileExists(t, src+".bz2")

	_, err = pipeline.NewPublisher(nil, slog.New(slog.DiscardHandler), metrics).Publish(t.Context(), dst, src)
	assert.Error(t, err)
}
