// Package geomtest provides a pure-Go geometry.Provider for tests. It models
// geometries as sets of axis-aligned lon/lat rectangles, which keeps union,
// intersection, and difference exact without a GDAL install. Area in hectares
// uses an equirectangular approximation that stays within a percent of the
// projected value for small areas.
package geomtest

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/minewatch/minewatch/internal/geometry"
)

// Rect is one axis-aligned rectangle in lon/lat degrees.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

func (r Rect) empty() bool { return r.MaxX <= r.MinX || r.MaxY <= r.MinY }

func (r Rect) intersect(o Rect) (Rect, bool) {
	out := Rect{
		MinX: math.Max(r.MinX, o.MinX),
		MinY: math.Max(r.MinY, o.MinY),
		MaxX: math.Min(r.MaxX, o.MaxX),
		MaxY: math.Min(r.MaxY, o.MaxY),
	}
	if out.empty() {
		return Rect{}, false
	}
	return out, true
}

// subtract returns r minus o as up to four disjoint rectangles.
func subtract(r, o Rect) []Rect {
	inter, ok := r.intersect(o)
	if !ok {
		return []Rect{r}
	}
	var out []Rect
	if r.MinY < inter.MinY {
		out = append(out, Rect{r.MinX, r.MinY, r.MaxX, inter.MinY})
	}
	if inter.MaxY < r.MaxY {
		out = append(out, Rect{r.MinX, inter.MaxY, r.MaxX, r.MaxY})
	}
	if r.MinX < inter.MinX {
		out = append(out, Rect{r.MinX, inter.MinY, inter.MinX, inter.MaxY})
	}
	if inter.MaxX < r.MaxX {
		out = append(out, Rect{inter.MaxX, inter.MinY, r.MaxX, inter.MaxY})
	}
	return out
}

// Region is a set of rectangles, possibly overlapping. It implements
// geometry.Geometry.
type Region struct {
	rects []Rect
}

// NewRegion builds a Region from rectangles, dropping degenerate ones.
func NewRegion(rects ...Rect) *Region {
	rg := &Region{}
	for _, r := range rects {
		if !r.empty() {
			rg.rects = append(rg.rects, r)
		}
	}
	return rg
}

// disjoint decomposes the region into non-overlapping rectangles with a
// vertical sweep.
func (rg *Region) disjoint() []Rect {
	if len(rg.rects) == 0 {
		return nil
	}
	xs := make([]float64, 0, 2*len(rg.rects))
	for _, r := range rg.rects {
		xs = append(xs, r.MinX, r.MaxX)
	}
	sort.Float64s(xs)
	var out []Rect
	for i := 0; i+1 < len(xs); i++ {
		x0, x1 := xs[i], xs[i+1]
		if x1 <= x0 {
			continue
		}
		var ivals [][2]float64
		for _, r := range rg.rects {
			if r.MinX <= x0 && r.MaxX >= x1 {
				ivals = append(ivals, [2]float64{r.MinY, r.MaxY})
			}
		}
		for _, iv := range mergeIntervals(ivals) {
			out = append(out, Rect{x0, iv[0], x1, iv[1]})
		}
	}
	return out
}

func mergeIntervals(ivals [][2]float64) [][2]float64 {
	if len(ivals) == 0 {
		return nil
	}
	sort.Slice(ivals, func(i, j int) bool { return ivals[i][0] < ivals[j][0] })
	out := [][2]float64{ivals[0]}
	for _, iv := range ivals[1:] {
		last := &out[len(out)-1]
		if iv[0] <= last[1] {
			if iv[1] > last[1] {
				last[1] = iv[1]
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Area returns the union area in square degrees.
func (rg *Region) Area() float64 {
	var sum float64
	for _, r := range rg.disjoint() {
		sum += (r.MaxX - r.MinX) * (r.MaxY - r.MinY)
	}
	return sum
}

// IsEmpty reports whether the region covers no area.
func (rg *Region) IsEmpty() bool { return rg.Area() == 0 }

// Intersects reports whether the regions overlap with positive area.
func (rg *Region) Intersects(other geometry.Geometry) bool {
	o, ok := other.(*Region)
	if !ok {
		return false
	}
	for _, a := range rg.rects {
		for _, b := range o.rects {
			if _, ok := a.intersect(b); ok {
				return true
			}
		}
	}
	return false
}

// Contains reports whether other lies entirely inside rg.
func (rg *Region) Contains(other geometry.Geometry) bool {
	o, ok := other.(*Region)
	if !ok {
		return false
	}
	diff, err := o.Difference(rg)
	if err != nil {
		return false
	}
	return diff.IsEmpty()
}

// Union returns the combined region.
func (rg *Region) Union(other geometry.Geometry) (geometry.Geometry, error) {
	o, ok := other.(*Region)
	if !ok {
		return nil, fmt.Errorf("geomtest: cannot union with %T", other)
	}
	combined := make([]Rect, 0, len(rg.rects)+len(o.rects))
	combined = append(combined, rg.rects...)
	combined = append(combined, o.rects...)
	return NewRegion(combined...), nil
}

// Intersection returns the overlapping parts of both regions.
func (rg *Region) Intersection(other geometry.Geometry) (geometry.Geometry, error) {
	o, ok := other.(*Region)
	if !ok {
		return nil, fmt.Errorf("geomtest: cannot intersect with %T", other)
	}
	var out []Rect
	for _, a := range rg.disjoint() {
		for _, b := range o.disjoint() {
			if r, ok := a.intersect(b); ok {
				out = append(out, r)
			}
		}
	}
	// Disjoint inputs keep the pairwise intersections disjoint too.
	return NewRegion(out...), nil
}

// Difference returns rg minus other.
func (rg *Region) Difference(other geometry.Geometry) (geometry.Geometry, error) {
	o, ok := other.(*Region)
	if !ok {
		return nil, fmt.Errorf("geomtest: cannot subtract %T", other)
	}
	remaining := rg.disjoint()
	for _, b := range o.rects {
		var next []Rect
		for _, piece := range remaining {
			next = append(next, subtract(piece, b)...)
		}
		remaining = next
	}
	return NewRegion(remaining...), nil
}

// Buffer expands every rectangle by dist degrees on each side.
func (rg *Region) Buffer(dist float64) (geometry.Geometry, error) {
	out := make([]Rect, 0, len(rg.rects))
	for _, r := range rg.rects {
		out = append(out, Rect{r.MinX - dist, r.MinY - dist, r.MaxX + dist, r.MaxY + dist})
	}
	return NewRegion(out...), nil
}

// Centroid returns the center of the bounding box.
func (rg *Region) Centroid() (lon, lat float64) {
	if len(rg.rects) == 0 {
		return 0, 0
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, r := range rg.rects {
		minX = math.Min(minX, r.MinX)
		minY = math.Min(minY, r.MinY)
		maxX = math.Max(maxX, r.MaxX)
		maxY = math.Max(maxY, r.MaxY)
	}
	return (minX + maxX) / 2, (minY + maxY) / 2
}

// MarshalGeoJSON renders the region as a MultiPolygon of its rectangles.
func (rg *Region) MarshalGeoJSON() ([]byte, error) {
	polys := make([][][][2]float64, 0, len(rg.rects))
	for _, r := range rg.disjoint() {
		ring := [][2]float64{
			{r.MinX, r.MinY}, {r.MaxX, r.MinY}, {r.MaxX, r.MaxY}, {r.MinX, r.MaxY}, {r.MinX, r.MinY},
		}
		polys = append(polys, [][][2]float64{ring})
	}
	return json.Marshal(map[string]interface{}{
		"type":        "MultiPolygon",
		"coordinates": polys,
	})
}

const (
	metersPerDegLat = 110574.0
	metersPerDegLon = 111320.0
)

// Provider implements geometry.Provider over Regions. FromGeoJSON accepts
// Polygon and MultiPolygon geometries whose outer rings are axis-aligned
// rectangles (it uses each ring's bounding box).
type Provider struct{}

// FromGeoJSON parses a GeoJSON geometry into a Region.
func (Provider) FromGeoJSON(raw []byte) (geometry.Geometry, error) {
	var node struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("geomtest: parse geometry: %w", err)
	}
	var rings [][][][2]float64
	switch node.Type {
	case "Polygon":
		var poly [][][2]float64
		if err := json.Unmarshal(node.Coordinates, &poly); err != nil {
			return nil, fmt.Errorf("geomtest: parse polygon: %w", err)
		}
		rings = [][][][2]float64{poly}
	case "MultiPolygon":
		if err := json.Unmarshal(node.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("geomtest: parse multipolygon: %w", err)
		}
	default:
		return nil, fmt.Errorf("geomtest: unsupported geometry type %q", node.Type)
	}
	var rects []Rect
	for _, poly := range rings {
		if len(poly) == 0 || len(poly[0]) == 0 {
			continue
		}
		r := Rect{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
		for _, pt := range poly[0] {
			r.MinX = math.Min(r.MinX, pt[0])
			r.MinY = math.Min(r.MinY, pt[1])
			r.MaxX = math.Max(r.MaxX, pt[0])
			r.MaxY = math.Max(r.MaxY, pt[1])
		}
		rects = append(rects, r)
	}
	if len(rects) == 0 {
		return nil, fmt.Errorf("geomtest: geometry has no rings")
	}
	return NewRegion(rects...), nil
}

// AreaHectares approximates the projected area of g in hectares.
func (Provider) AreaHectares(g geometry.Geometry) (float64, error) {
	rg, ok := g.(*Region)
	if !ok {
		return 0, fmt.Errorf("geomtest: cannot measure %T", g)
	}
	var m2 float64
	for _, r := range rg.disjoint() {
		midLat := (r.MinY + r.MaxY) / 2 * math.Pi / 180
		w := (r.MaxX - r.MinX) * metersPerDegLon * math.Cos(midLat)
		h := (r.MaxY - r.MinY) * metersPerDegLat
		m2 += w * h
	}
	return m2 / 10000, nil
}
