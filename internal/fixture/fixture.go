// Package fixture writes synthetic Harmonie forecast runs for local runs and
// tests. The fields are smooth analytic patterns, not real weather.
package fixture

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sensingclues/harmonie-grib/internal/adapter/grib1"
	"github.com/sensingclues/harmonie-grib/internal/domain"
)

// Options shapes a generated run.
type Options struct {
	RunTime time.Time
	Hours   int // forecast hours 0..Hours-1
	Ni, Nj  int
	Area    grib1.Area
	// Omit drops a parameter from one forecast hour, to provoke selection failures.
	Omit map[int]int // hour -> parameter
}

// DefaultOptions is a 49-hour run over the Netherlands on a coarse grid.
func DefaultOptions(runTime time.Time) Options {
	return Options{
		RunTime: runTime.UTC(),
		Hours:   49,
		Ni:      12,
		Nj:      10,
		Area:    grib1.Area{La1: 49, Lo1: 0, La2: 56, Lo2: 11},
	}
}

// FileName is the conventional name of one forecast-hour file.
func FileName(runTime time.Time, hour int) string {
	return fmt.Sprintf("harm36_v1_ned_surface_%s_%03d_GB", runTime.UTC().Format("2006010215"), hour)
}

type field struct {
	param     int
	levelType int
	level     int
	scale     int // decimal scale factor
	value     func(x, y, t float64) float64
}

// fields lists what a Harmonie surface file carries, including records no
// product rule selects.
var fields = []field{
	{domain.ParamPressure, domain.LevelSurface, 0, 0, func(x, y, t float64) float64 {
		return 101325 + 800*math.Sin(x*2+t/6)*math.Cos(y*3)
	}},
	{domain.ParamTemperature, domain.LevelHeightAboveGround, 2, 2, func(x, y, t float64) float64 {
		return 283 + 6*math.Sin(2*math.Pi*t/24) - 4*y
	}},
	{domain.ParamRelativeHumidity, domain.LevelHeightAboveGround, 2, 3, func(x, y, t float64) float64 {
		return 0.55 + 0.4*math.Sin(x+y+t/8)
	}},
	{domain.ParamUWind, domain.LevelHeightAboveGround, 10, 2, func(x, y, t float64) float64 {
		return 6 * math.Cos(y*2+t/12)
	}},
	{domain.ParamVWind, domain.LevelHeightAboveGround, 10, 2, func(x, y, t float64) float64 {
		return 4 * math.Sin(x*2-t/12)
	}},
	{domain.ParamPrecipitation, domain.LevelHeightAboveGround, 0, 7, func(x, y, t float64) float64 {
		return 0
	}},
	{domain.ParamPrecipitation, domain.LevelHeightAboveGround, 456, 7, func(x, y, t float64) float64 {
		return math.Max(0, 0.0004*math.Sin(x*3+y*2+t/4))
	}},
	{domain.ParamUGust, domain.LevelHeightAboveGround, 10, 2, func(x, y, t float64) float64 {
		return 9 * math.Cos(y*2+t/12)
	}},
	{domain.ParamVGust, domain.LevelHeightAboveGround, 10, 2, func(x, y, t float64) float64 {
		return 7 * math.Sin(x*2-t/12)
	}},
}

// Hour encodes every field of one forecast hour.
func Hour(opts Options, hour int) ([]byte, error) {
	var out []byte
	for _, f := range fields {
		if p, ok := opts.Omit[hour]; ok && p == f.param {
			continue
		}
		h := grib1.Header{
			TableVersion: 253,
			Centre:       99,
			Process:      1,
			Parameter:    f.param,
			LevelType:    f.levelType,
			Level:        f.level,
			RefTime:      opts.RunTime,
			ForecastHour: hour,
			DecimalScale: f.scale,
		}
		msg, err := grib1.NewMessage(h, grid(opts, hour, f), opts.Area)
		if err != nil {
			return nil, fmt.Errorf("parameter %d hour %d: %w", f.param, hour, err)
		}
		out = append(out, msg...)
	}
	return out, nil
}

func grid(opts Options, hour int, f field) domain.Grid {
	g := domain.Grid{Ni: opts.Ni, Nj: opts.Nj, Values: make([]float64, opts.Ni*opts.Nj)}
	for j := range opts.Nj {
		for i := range opts.Ni {
			x := float64(i) / float64(max(opts.Ni-1, 1))
			y := float64(j) / float64(max(opts.Nj-1, 1))
			g.Values[j*opts.Ni+i] = f.value(x, y, float64(hour))
		}
	}
	return g
}

// WriteRun writes a complete run into dir and returns the file paths in
// forecast-hour order.
func WriteRun(dir string, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, opts.Hours)
	for hour := range opts.Hours {
		data, err := Hour(opts, hour)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, FileName(opts.RunTime, hour))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
