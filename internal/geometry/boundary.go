package geometry

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/errdefs"
)

// geojsonNode is the loose shape of any GeoJSON object we accept.
type geojsonNode struct {
	Type        string            `json:"type"`
	Geometry    json.RawMessage   `json:"geometry"`
	Features    []json.RawMessage `json:"features"`
	Geometries  []json.RawMessage `json:"geometries"`
	Coordinates interface{}       `json:"coordinates"`
}

// ResolveBoundary extracts a usable area-of-interest geometry from raw
// GeoJSON. It accepts bare geometries, Features, FeatureCollections, and
// GeometryCollections, tolerates string-typed coordinates and extra
// dimensions, and skips malformed sub-geometries. Non-polygonal geometries
// are ignored since a boundary must enclose area. Returns a ValidationError
// when nothing usable remains.
func ResolveBoundary(raw []byte, p Provider, log *logrus.Logger) (Geometry, error) {
	if len(raw) == 0 {
		return nil, errdefs.NewValidation("boundary", "empty geometry document")
	}
	polys := collectPolygons(raw, log, 0)
	if len(polys) == 0 {
		return nil, errdefs.NewValidation("boundary", "no usable polygon found")
	}

	var merged Geometry
	for _, poly := range polys {
		clean, err := json.Marshal(poly)
		if err != nil {
			continue
		}
		g, err := p.FromGeoJSON(clean)
		if err != nil {
			if log != nil {
				log.WithError(err).Debug("Skipping unparseable boundary polygon")
			}
			continue
		}
		if g.IsEmpty() || g.Area() == 0 {
			continue
		}
		if merged == nil {
			merged = g
			continue
		}
		u, err := merged.Union(g)
		if err != nil {
			if log != nil {
				log.WithError(err).Debug("Skipping boundary polygon that failed to merge")
			}
			continue
		}
		merged = u
	}
	if merged == nil || merged.IsEmpty() || merged.Area() == 0 {
		return nil, errdefs.NewValidation("boundary", "geometry has no area")
	}
	return merged, nil
}

// cleanPolygon is a sanitized Polygon ready to re-marshal as strict GeoJSON.
type cleanPolygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

const maxNestingDepth = 8

// collectPolygons walks any GeoJSON object and returns the sanitized
// polygons it contains.
func collectPolygons(raw []byte, log *logrus.Logger, depth int) []cleanPolygon {
	if depth > maxNestingDepth {
		return nil
	}
	var node geojsonNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}

	switch {
	case strings.EqualFold(node.Type, "FeatureCollection"):
		var out []cleanPolygon
		for _, f := range node.Features {
			out = append(out, collectPolygons(f, log, depth+1)...)
		}
		return out
	case strings.EqualFold(node.Type, "Feature"):
		if len(node.Geometry) == 0 {
			return nil
		}
		return collectPolygons(node.Geometry, log, depth+1)
	case strings.EqualFold(node.Type, "GeometryCollection"):
		var out []cleanPolygon
		for _, g := range node.Geometries {
			out = append(out, collectPolygons(g, log, depth+1)...)
		}
		return out
	case strings.EqualFold(node.Type, "Polygon"):
		if poly, ok := cleanPolygonCoords(node.Coordinates); ok {
			return []cleanPolygon{{Type: "Polygon", Coordinates: poly}}
		}
		return nil
	case strings.EqualFold(node.Type, "MultiPolygon"):
		nested, ok := node.Coordinates.([]interface{})
		if !ok {
			return nil
		}
		var out []cleanPolygon
		for _, member := range nested {
			if poly, ok := cleanPolygonCoords(member); ok {
				out = append(out, cleanPolygon{Type: "Polygon", Coordinates: poly})
			}
		}
		return out
	default:
		// Points, lines, and unknown types cannot bound an area.
		return nil
	}
}

// cleanPolygonCoords sanitizes one polygon's ring list.
func cleanPolygonCoords(coords interface{}) ([][][2]float64, bool) {
	rings, ok := coords.([]interface{})
	if !ok {
		return nil, false
	}
	var out [][][2]float64
	for _, ring := range rings {
		positions, ok := ring.([]interface{})
		if !ok {
			continue
		}
		var clean [][2]float64
		for _, pos := range positions {
			pt, ok := cleanPosition(pos)
			if !ok {
				continue
			}
			clean = append(clean, pt)
		}
		// A linear ring needs at least three distinct vertices; close it if
		// the source left it open.
		if len(clean) < 3 {
			continue
		}
		if clean[0] != clean[len(clean)-1] {
			clean = append(clean, clean[0])
		}
		if len(clean) < 4 {
			continue
		}
		out = append(out, clean)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// cleanPosition coerces one coordinate position, tolerating string-typed
// values and truncating altitude or extra dimensions.
func cleanPosition(pos interface{}) ([2]float64, bool) {
	vals, ok := pos.([]interface{})
	if !ok || len(vals) < 2 {
		return [2]float64{}, false
	}
	var pt [2]float64
	for i := 0; i < 2; i++ {
		f, ok := coerceFloat(vals[i])
		if !ok {
			return [2]float64{}, false
		}
		pt[i] = f
	}
	return pt, true
}

func coerceFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
