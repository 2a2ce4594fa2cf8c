// Command harmonie post-processes a Harmonie forecast run into the published
// GRIB products: the full-domain streams and their regional crops.
//
// Usage:
//
//	harmonie run
//	harmonie slice temp.grb nl harmonie_zy_2016-05-10_06_nl.grb
//	harmonie regions
//	harmonie inspect tmp/harm36_v1_ned_surface_2016051006_000_GB
//
// Settings come from the environment (and .env); see internal/config.
package main

func main() {
	Execute()
}
