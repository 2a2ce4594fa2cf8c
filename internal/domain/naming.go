package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// forecastNameRe matches the tail of a Harmonie forecast file name:
// "<anything>_YYYYMMDDHH_FFF_GB", e.g. "harm36_v1_ned_surface_2016051006_048_GB".
// The run stamp must be exactly ten digits.
var forecastNameRe = regexp.MustCompile(`(?:^|_)(\d{10})_(\d{3})_GB$`)

const runTimeLayout = "2006010215"

// RunLabelLayout formats a run time as the output directory label.
const RunLabelLayout = "2006-01-02_15"

// ForecastFile is one forecast-hour input file.
type ForecastFile struct {
	Path         string
	Name         string
	RunTime      time.Time
	ForecastHour int
}

// ParseForecastFile extracts the run time and forecast hour from a file path.
func ParseForecastFile(path string) (ForecastFile, error) {
	name := filepath.Base(path)
	m := forecastNameRe.FindStringSubmatch(name)
	if m == nil {
		return ForecastFile{}, fmt.Errorf("forecast file name %q does not end in YYYYMMDDHH_FFF_GB", name)
	}
	runTime, err := time.ParseInLocation(runTimeLayout, m[1], time.UTC)
	if err != nil {
		return ForecastFile{}, fmt.Errorf("forecast file name %q: %w", name, err)
	}
	hour, _ := strconv.Atoi(m[2])
	return ForecastFile{Path: path, Name: name, RunTime: runTime, ForecastHour: hour}, nil
}

// RunLabel formats t as YYYY-MM-DD_HH.
func RunLabel(t time.Time) string {
	return t.UTC().Format(RunLabelLayout)
}

// ArtifactNamer builds published artifact paths for one run.
type ArtifactNamer struct {
	DataDir string
	Prefix  string
	Label   string
}

// Dir is the run's output directory.
func (n ArtifactNamer) Dir() string {
	return filepath.Join(n.DataDir, n.Label)
}

// Full is the path of the uncropped primary product.
func (n ArtifactNamer) Full() string {
	return filepath.Join(n.Dir(), fmt.Sprintf("%s_%s.grb", n.Prefix, n.Label))
}

// Variant is the path of a derived product such as "wind", "nl" or "wind_nl".
func (n ArtifactNamer) Variant(name string) string {
	return filepath.Join(n.Dir(), fmt.Sprintf("%s_%s_%s.grb", n.Prefix, n.Label, name))
}

// StreamName names the products derived from a stream.
type StreamName string

const (
	StreamPrimary StreamName = "primary"
	StreamWind    StreamName = "wind"
)

// CropName is the variant name of a region crop of stream.
func CropName(stream StreamName, region string) string {
	if stream == StreamWind {
		return "wind_" + region
	}
	return region
}
