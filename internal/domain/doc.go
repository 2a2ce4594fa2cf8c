// Package domain models the Harmonie forecast post-processing rules.
//
// # Inputs
//
// A run consumes one GRIB edition 1 file per forecast hour, 0 through 48, named
// "<prefix>_YYYYMMDDHH_FFF_GB". Each file holds many records; a record is one
// parameter on one level with a 2-D grid of values.
//
// # Product rules
//
// [ProductRules] is the ordered rule table. Every rule selects one record (two
// for wind gusts) by parameter identifier and optional level, rewrites it with a
// pure function and names the streams it goes to:
//
//	mslp                     1        → 2, level type mean sea level       primary
//	relative_humidity        52       values × 100 (fraction → percent)     primary
//	temperature_2m           11       unchanged                             primary
//	u_wind                   33       unchanged                             primary, wind
//	v_wind                   34       unchanged                             primary, wind
//	precipitation_intensity  61@456   values × 3600 (mm/s → mm/h), surface  primary
//	wind_gust                162,163  sqrt(u²+v²) → 180, surface            primary, wind
//
// Every output record is then stamped with generating process 96 and
// originating centre 7 (kwbc) by [StampProvenance].
//
// # Naming
//
// Products are written under "<data>/<YYYY-MM-DD_HH>/" where the label comes from
// the earliest input file. See [ArtifactNamer] and [CropName].
package domain
