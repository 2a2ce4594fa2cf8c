package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sensingclues/harmonie-grib/internal/domain"
	"github.com/sensingclues/harmonie-grib/internal/fixture"
)

var runTime = time.Date(2016, 5, 10, 6, 0, 0, 0, time.UTC)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func writeHour(t *testing.T, opts fixture.Options) string {
	t.Helper()
	data, err := fixture.Hour(opts, 0)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), fixture.FileName(runTime, 0))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInspect(t *testing.T) {
	out, err := execute(t, "inspect", writeHour(t, fixture.DefaultOptions(runTime)))
	require.NoError(t, err)

	assert.Contains(t, out, "PARAM")
	for _, rule := range domain.ProductRules() {
		assert.Contains(t, out, "ok   "+rule.Name)
	}
}

func TestInspect_MissingParameter(t *testing.T) {
	opts := fixture.DefaultOptions(runTime)
	opts.Omit = map[int]int{0: domain.ParamVGust}

	out, err := execute(t, "inspect", writeHour(t, opts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 7 rules")
	assert.Contains(t, out, "FAIL wind_gust")
	assert.Contains(t, out, "ok   mslp")
}

func TestInspect_NotGrib(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(path, []byte("not a forecast"), 0o644))

	_, err := execute(t, "inspect", path)
	require.Error(t, err)
}

func TestRegions(t *testing.T) {
	t.Setenv("REGIONS_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "regions")
	require.NoError(t, err)

	var got struct {
		Regions []domain.Region `yaml:"regions"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, domain.DefaultRegions(), got.Regions)
}

func TestSlice_UnknownRegion(t *testing.T) {
	t.Setenv("REGIONS_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	_, err := execute(t, "slice", "temp.grb", "atlantis", "out.grb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown region "atlantis"`)
}
