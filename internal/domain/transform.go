package domain

import "fmt"

// Destination is a set of output streams a rule appends to.
type Destination uint8

const (
	DestPrimary Destination = 1 << iota
	DestWind
)

// Has reports whether d includes stream.
func (d Destination) Has(stream Destination) bool { return d&stream != 0 }

// RuleKind tags the transformation a Rule applies.
type RuleKind int

const (
	RuleMSLP RuleKind = iota
	RuleRelativeHumidity
	RuleTemperature2m
	RuleUWind
	RuleVWind
	RulePrecipitation
	RuleWindGust
)

// Rule is one product rule: which records it reads, how it rewrites them and
// which streams receive the result.
type Rule struct {
	Kind    RuleKind
	Name    string
	Sources []Selector
	Dest    Destination
}

// precipitationLevel is the level Harmonie files store precipitation intensity at.
const precipitationLevel = 456

// ProductRules returns the fixed rule set in publication order. Stream
// contents follow this order within every forecast file.
func ProductRules() []Rule {
	return []Rule{
		{Kind: RuleMSLP, Name: "mslp", Sources: []Selector{Param(ParamPressure)}, Dest: DestPrimary},
		{Kind: RuleRelativeHumidity, Name: "relative_humidity", Sources: []Selector{Param(ParamRelativeHumidity)}, Dest: DestPrimary},
		{Kind: RuleTemperature2m, Name: "temperature_2m", Sources: []Selector{Param(ParamTemperature)}, Dest: DestPrimary},
		{Kind: RuleUWind, Name: "u_wind", Sources: []Selector{Param(ParamUWind)}, Dest: DestPrimary | DestWind},
		{Kind: RuleVWind, Name: "v_wind", Sources: []Selector{Param(ParamVWind)}, Dest: DestPrimary | DestWind},
		{Kind: RulePrecipitation, Name: "precipitation_intensity", Sources: []Selector{ParamAtLevel(ParamPrecipitation, precipitationLevel)}, Dest: DestPrimary},
		{Kind: RuleWindGust, Name: "wind_gust", Sources: []Selector{Param(ParamUGust), Param(ParamVGust)}, Dest: DestPrimary | DestWind},
	}
}

// Apply selects the rule's sources from records and returns the transformed,
// provenance-stamped record. Selection misses are returned as
// *SelectionError wrapping ErrRecordNotFound.
func (r Rule) Apply(records []Record) (Record, error) {
	src := make([]Record, len(r.Sources))
	for i, sel := range r.Sources {
		rec, err := Select(records, sel)
		if err != nil {
			return Record{}, &SelectionError{Rule: r.Name, Selector: sel, Err: err}
		}
		src[i] = rec
	}

	out, err := r.Transform(src...)
	if err != nil {
		return Record{}, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	return StampProvenance(out), nil
}

// Transform applies the rule's mutation to already selected records.
func (r Rule) Transform(src ...Record) (Record, error) {
	if len(src) != len(r.Sources) {
		return Record{}, fmt.Errorf("rule %s expects %d records, got %d", r.Name, len(r.Sources), len(src))
	}

	switch r.Kind {
	case RuleMSLP:
		return TransformMSLP(src[0]), nil
	case RuleRelativeHumidity:
		return TransformRelativeHumidity(src[0]), nil
	case RuleTemperature2m, RuleUWind, RuleVWind:
		return src[0], nil
	case RulePrecipitation:
		return TransformPrecipitation(src[0]), nil
	case RuleWindGust:
		return TransformWindGust(src[0], src[1])
	default:
		return Record{}, fmt.Errorf("unknown rule kind %d", r.Kind)
	}
}

// TransformMSLP relabels pressure as mean-sea-level pressure. The surface and
// mean-sea-level level kinds share one header octet; mean sea level is what lands.
func TransformMSLP(r Record) Record {
	r.ParameterID = ParamPressureMSL
	r.LevelType = LevelMeanSea
	return r
}

// TransformRelativeHumidity converts a fraction to percent.
func TransformRelativeHumidity(r Record) Record {
	return r.WithGrid(r.Grid.Scale(100))
}

// TransformPrecipitation converts mm/s to mm/h and moves the field to the surface.
func TransformPrecipitation(r Record) Record {
	r = r.WithGrid(r.Grid.Scale(3600))
	r.LevelType = LevelSurface
	r.Level = 0
	return r
}

// TransformWindGust derives gust speed from its u and v components. The
// result keeps u's metadata, relabelled as gust speed at the surface.
func TransformWindGust(u, v Record) (Record, error) {
	speed, err := Magnitude(u.Grid, v.Grid)
	if err != nil {
		return Record{}, err
	}
	out := u.WithGrid(speed)
	out.ParameterID = ParamGustSpeed
	out.LevelType = LevelSurface
	out.Level = 0
	return out, nil
}

// StampProvenance overwrites the generating process and originating centre.
func StampProvenance(r Record) Record {
	r.ProcessID = ProvenanceProcessID
	r.CentreID = ProvenanceCentreID
	return r
}
