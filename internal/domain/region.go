package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// LngLat is a coordinate in degrees, longitude first.
type LngLat struct {
	Lng float64 `yaml:"lng" json:"lng"`
	Lat float64 `yaml:"lat" json:"lat"`
}

// BoundingBox is a rectangle given by its southwest and northeast corners.
type BoundingBox struct {
	SW LngLat `yaml:"sw" json:"sw"`
	NE LngLat `yaml:"ne" json:"ne"`
}

// Args renders the corners in cropping tool order: sw_lng sw_lat ne_lng ne_lat.
func (b BoundingBox) Args() []string {
	return []string{
		formatCoord(b.SW.Lng),
		formatCoord(b.SW.Lat),
		formatCoord(b.NE.Lng),
		formatCoord(b.NE.Lat),
	}
}

// Validate checks the corners are ordered and within WGS-84 range.
func (b BoundingBox) Validate() error {
	for _, c := range []LngLat{b.SW, b.NE} {
		if c.Lng < -180 || c.Lng > 180 || c.Lat < -90 || c.Lat > 90 {
			return fmt.Errorf("corner (%g, %g) out of range", c.Lng, c.Lat)
		}
	}
	if b.SW.Lng >= b.NE.Lng || b.SW.Lat >= b.NE.Lat {
		return errors.New("southwest corner must lie below and left of northeast corner")
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Region is a named crop of the merged products.
type Region struct {
	Name   string      `yaml:"name" json:"name"`
	Bounds BoundingBox `yaml:"bounds" json:"bounds"`
}

// DefaultRegions is the built-in region registry, in slicing order.
func DefaultRegions() []Region {
	return []Region{
		{Name: "nl", Bounds: BoundingBox{SW: LngLat{3.071, 50.748}, NE: LngLat{7.252, 53.761}}},
		{Name: "ijmwad", Bounds: BoundingBox{SW: LngLat{4.363, 52.294}, NE: LngLat{5.903, 53.411}}},
		{Name: "zeeland", Bounds: BoundingBox{SW: LngLat{2.6, 51.2}, NE: LngLat{5.0, 52.0}}},
	}
}

// ValidateRegions checks names are unique, non-empty and bounds are sane.
func ValidateRegions(regions []Region) error {
	seen := make(map[string]bool, len(regions))
	for _, r := range regions {
		if r.Name == "" {
			return errors.New("region name is required")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate region %q", r.Name)
		}
		seen[r.Name] = true
		if err := r.Bounds.Validate(); err != nil {
			return fmt.Errorf("region %s: %w", r.Name, err)
		}
	}
	return nil
}

// FindRegion looks a region up by name.
func FindRegion(regions []Region, name string) (Region, bool) {
	for _, r := range regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}
