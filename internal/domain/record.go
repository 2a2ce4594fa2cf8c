package domain

import (
	"fmt"
	"math"
	"time"
)

// GRIB1 table 3 level type codes used by the product rules.
const (
	LevelSurface           = 1
	LevelMeanSea           = 102
	LevelHeightAboveGround = 105
)

// GRIB1 parameter identifiers (Harmonie local table) referenced by the rules.
const (
	ParamPressure         = 1
	ParamPressureMSL      = 2
	ParamTemperature      = 11
	ParamUWind            = 33
	ParamVWind            = 34
	ParamRelativeHumidity = 52
	ParamPrecipitation    = 61
	ParamUGust            = 162
	ParamVGust            = 163
	ParamGustSpeed        = 180
)

// Provenance stamped onto every published record.
const (
	ProvenanceProcessID = 96
	ProvenanceCentreID  = 7 // kwbc
)

// Grid is a row-major 2-D field of Ni columns by Nj rows. Masked (bitmapped)
// cells hold NaN.
type Grid struct {
	Ni     int
	Nj     int
	Values []float64
}

// Len returns the number of cells described by the grid dimensions.
func (g Grid) Len() int { return g.Ni * g.Nj }

// SameShape reports whether two grids have identical dimensions.
func (g Grid) SameShape(o Grid) bool {
	return g.Ni == o.Ni && g.Nj == o.Nj && len(g.Values) == len(o.Values)
}

// Scale returns a new grid with every cell multiplied by factor.
func (g Grid) Scale(factor float64) Grid {
	out := Grid{Ni: g.Ni, Nj: g.Nj, Values: make([]float64, len(g.Values))}
	for i, v := range g.Values {
		out.Values[i] = v * factor
	}
	return out
}

// Magnitude returns sqrt(u² + v²) per cell. Both grids must share a shape.
func Magnitude(u, v Grid) (Grid, error) {
	if !u.SameShape(v) {
		return Grid{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, u.Ni, u.Nj, v.Ni, v.Nj)
	}
	out := Grid{Ni: u.Ni, Nj: u.Nj, Values: make([]float64, len(u.Values))}
	for i := range u.Values {
		out.Values[i] = math.Hypot(u.Values[i], v.Values[i])
	}
	return out, nil
}

// Record is one meteorological field decoded from a forecast file.
type Record struct {
	ParameterID  int
	LevelType    int
	Level        int
	ProcessID    int
	CentreID     int
	TableVersion int
	RefTime      time.Time
	ForecastHour int
	Grid         Grid

	// Source is the encoded message the record was decoded from. The codec
	// reuses it as a template so untouched sections survive byte for byte.
	Source []byte `json:"-"`

	// ValuesModified is set when Grid no longer matches the packed values in Source.
	ValuesModified bool
}

// WithGrid returns a copy of r carrying g as its values.
func (r Record) WithGrid(g Grid) Record {
	r.Grid = g
	r.ValuesModified = true
	return r
}

func (r Record) String() string {
	return fmt.Sprintf("param=%d level_type=%d level=%d grid=%dx%d", r.ParameterID, r.LevelType, r.Level, r.Grid.Ni, r.Grid.Nj)
}
