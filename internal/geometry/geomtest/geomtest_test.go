package geomtest

import (
	"math"
	"testing"
)

func TestRegion_AreaUnionOverlap(t *testing.T) {
	a := NewRegion(Rect{0, 0, 2, 2})
	b := NewRegion(Rect{1, 1, 3, 3})
	u, err := a.Union(b)
	if err != nil {
		t.Fatal(err)
	}
	// 4 + 4 - 1 overlap
	if got := u.Area(); math.Abs(got-7) > 1e-9 {
		t.Errorf("union area = %v, want 7", got)
	}
}

func TestRegion_IntersectionDifference(t *testing.T) {
	a := NewRegion(Rect{0, 0, 2, 2})
	b := NewRegion(Rect{1, 0, 3, 2})

	inter, err := a.Intersection(b)
	if err != nil {
		t.Fatal(err)
	}
	if got := inter.Area(); math.Abs(got-2) > 1e-9 {
		t.Errorf("intersection area = %v, want 2", got)
	}

	diff, err := a.Difference(b)
	if err != nil {
		t.Fatal(err)
	}
	if got := diff.Area(); math.Abs(got-2) > 1e-9 {
		t.Errorf("difference area = %v, want 2", got)
	}
}

func TestRegion_Contains(t *testing.T) {
	outer := NewRegion(Rect{0, 0, 10, 10})
	inner := NewRegion(Rect{2, 2, 4, 4})
	straddling := NewRegion(Rect{8, 8, 12, 12})

	if !outer.Contains(inner) {
		t.Error("outer should contain inner")
	}
	if outer.Contains(straddling) {
		t.Error("outer should not contain straddling")
	}
	if !outer.Contains(outer) {
		t.Error("region should contain itself")
	}
}

func TestRegion_Buffer(t *testing.T) {
	r := NewRegion(Rect{1, 1, 2, 2})
	buf, err := r.Buffer(0.5)
	if err != nil {
		t.Fatal(err)
	}
	if got := buf.Area(); math.Abs(got-4) > 1e-9 {
		t.Errorf("buffered area = %v, want 4", got)
	}
	if !buf.Contains(r) {
		t.Error("buffered region should contain the original")
	}
}

func TestProvider_FromGeoJSONRoundTrip(t *testing.T) {
	var p Provider
	src := NewRegion(Rect{-1, -1, 1, 1}, Rect{2, 2, 3, 4})
	raw, err := src.MarshalGeoJSON()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := p.FromGeoJSON(raw)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(parsed.Area()-src.Area()) > 1e-9 {
		t.Errorf("round-trip area = %v, want %v", parsed.Area(), src.Area())
	}
}

func TestProvider_AreaHectares_EquatorDegreeSquare(t *testing.T) {
	var p Provider
	g := NewRegion(Rect{0, 0, 1, 1})
	ha, err := p.AreaHectares(g)
	if err != nil {
		t.Fatal(err)
	}
	km2 := ha / 100
	// A 1x1 degree square at the equator is roughly 12,390 km2.
	if km2 < 12390*0.99 || km2 > 12390*1.01 {
		t.Errorf("area = %.0f km2, want within 1%% of 12390", km2)
	}
}
