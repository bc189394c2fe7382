// Package geometry defines the planar geometry operations the analysis
// pipeline needs, plus tolerant GeoJSON boundary resolution. Concrete
// geometry math is supplied by a Provider; the GDAL/OGR implementation lives
// in this package, and geomtest provides a pure-Go one for tests.
package geometry

import "github.com/minewatch/minewatch/internal/errdefs"

// Geometry is an immutable 2D geometry in geographic lon/lat coordinates
// (EPSG:4326). Area is planar, in square degrees; use Provider.AreaHectares
// for real-world areas.
type Geometry interface {
	Area() float64
	IsEmpty() bool
	Intersects(other Geometry) bool
	Contains(other Geometry) bool
	Union(other Geometry) (Geometry, error)
	Intersection(other Geometry) (Geometry, error)
	Difference(other Geometry) (Geometry, error)
	// Buffer expands the geometry by dist degrees.
	Buffer(dist float64) (Geometry, error)
	// Centroid returns the lon/lat center used for projection selection.
	Centroid() (lon, lat float64)
	MarshalGeoJSON() ([]byte, error)
}

// Provider constructs geometries and computes projected areas.
type Provider interface {
	// FromGeoJSON parses a single GeoJSON geometry object.
	FromGeoJSON(raw []byte) (Geometry, error)
	// AreaHectares projects g into the UTM zone of its centroid and returns
	// the planar area in hectares.
	AreaHectares(g Geometry) (float64, error)
}

// CoveragePercent returns how much of boundary is covered by covered, as a
// percentage of boundary's area.
func CoveragePercent(boundary, covered Geometry) (float64, error) {
	if boundary == nil || boundary.IsEmpty() || boundary.Area() == 0 {
		return 0, errdefs.NewValidation("boundary", "has no area")
	}
	if covered == nil || covered.IsEmpty() {
		return 0, nil
	}
	if !boundary.Intersects(covered) {
		return 0, nil
	}
	inter, err := boundary.Intersection(covered)
	if err != nil {
		return 0, err
	}
	if inter.IsEmpty() {
		return 0, nil
	}
	return inter.Area() / boundary.Area() * 100, nil
}
