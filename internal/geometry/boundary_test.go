package geometry_test

import (
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/errdefs"
	"github.com/minewatch/minewatch/internal/geometry"
	"github.com/minewatch/minewatch/internal/geometry/geomtest"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

const unitSquare = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`

func TestResolveBoundary_BareGeometry(t *testing.T) {
	g, err := geometry.ResolveBoundary([]byte(unitSquare), geomtest.Provider{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(g.Area()-1) > 1e-9 {
		t.Errorf("area = %v, want 1", g.Area())
	}
}

func TestResolveBoundary_Feature(t *testing.T) {
	raw := `{"type":"Feature","properties":{"name":"site"},"geometry":` + unitSquare + `}`
	g, err := geometry.ResolveBoundary([]byte(raw), geomtest.Provider{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(g.Area()-1) > 1e-9 {
		t.Errorf("area = %v, want 1", g.Area())
	}
}

func TestResolveBoundary_FeatureCollectionUnion(t *testing.T) {
	raw := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[2,0],[3,0],[3,1],[2,1],[2,0]]]}}
	]}`
	g, err := geometry.ResolveBoundary([]byte(raw), geomtest.Provider{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(g.Area()-2) > 1e-9 {
		t.Errorf("union area = %v, want 2", g.Area())
	}
}

func TestResolveBoundary_GeometryCollection(t *testing.T) {
	raw := `{"type":"GeometryCollection","geometries":[
		{"type":"Point","coordinates":[0,0]},
		{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}
	]}`
	g, err := geometry.ResolveBoundary([]byte(raw), geomtest.Provider{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(g.Area()-4) > 1e-9 {
		t.Errorf("area = %v, want 4", g.Area())
	}
}

func TestResolveBoundary_StringCoordsAndExtraDims(t *testing.T) {
	raw := `{"type":"Polygon","coordinates":[[["0","0",120],["1","0",121],["1","1",119],["0","1",122],["0","0",120]]]}`
	g, err := geometry.ResolveBoundary([]byte(raw), geomtest.Provider{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(g.Area()-1) > 1e-9 {
		t.Errorf("area = %v, want 1", g.Area())
	}
}

func TestResolveBoundary_SkipsMalformedSubGeometry(t *testing.T) {
	raw := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[["x","y"],["a","b"]]]}},
		{"type":"Feature","geometry":` + unitSquare + `}
	]}`
	g, err := geometry.ResolveBoundary([]byte(raw), geomtest.Provider{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(g.Area()-1) > 1e-9 {
		t.Errorf("area = %v, want 1", g.Area())
	}
}

func TestResolveBoundary_UnclosedRingIsClosed(t *testing.T) {
	raw := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1]]]}`
	g, err := geometry.ResolveBoundary([]byte(raw), geomtest.Provider{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if g.IsEmpty() {
		t.Error("unclosed ring should still resolve")
	}
}

func TestResolveBoundary_NothingUsable(t *testing.T) {
	cases := map[string]string{
		"empty":      ``,
		"not json":   `{{{`,
		"point only": `{"type":"Point","coordinates":[1,2]}`,
		"line only":  `{"type":"LineString","coordinates":[[0,0],[1,1]]}`,
		"empty collection": `{"type":"FeatureCollection","features":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := geometry.ResolveBoundary([]byte(raw), geomtest.Provider{}, testLogger())
			var verr *errdefs.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCoveragePercent(t *testing.T) {
	boundary := geomtest.NewRegion(geomtest.Rect{0, 0, 10, 10})
	half := geomtest.NewRegion(geomtest.Rect{0, 0, 5, 10})
	outside := geomtest.NewRegion(geomtest.Rect{20, 20, 30, 30})

	got, err := geometry.CoveragePercent(boundary, half)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-50) > 1e-9 {
		t.Errorf("coverage = %v, want 50", got)
	}

	got, err = geometry.CoveragePercent(boundary, outside)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("disjoint coverage = %v, want 0", got)
	}

	if _, err := geometry.CoveragePercent(geomtest.NewRegion(), half); err == nil {
		t.Error("expected error for empty boundary")
	}
}
