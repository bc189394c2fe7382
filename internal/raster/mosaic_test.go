package raster

import (
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/errdefs"
	"github.com/minewatch/minewatch/internal/geometry"
	"github.com/minewatch/minewatch/internal/geometry/geomtest"
)

func pointProbe(x, y float64) (geometry.Geometry, error) {
	const eps = 1e-6
	return geomtest.NewRegion(geomtest.Rect{MinX: x - eps, MinY: y - eps, MaxX: x + eps, MaxY: y + eps}), nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// degreeGrid builds a grid with one-degree pixels whose top-left corner is at
// lon/lat (originX, originY), filled with value.
func degreeGrid(w, h int, originX, originY, value float64) *Grid {
	g := NewGrid(GridDef{
		Width: w, Height: h,
		Transform: [6]float64{originX, 1, 0, originY, 0, -1},
		SRS:       "EPSG:4326",
	}, 0)
	for i := range g.Data {
		g.Data[i] = value
	}
	return g
}

func rectBoundary(minX, minY, maxX, maxY float64) geometry.Geometry {
	return geomtest.NewRegion(geomtest.Rect{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY})
}

func newTestMosaicker(eng mosaicEngine, method MergeMethod, minCov float64) *Mosaicker {
	return NewMosaicker(eng, MosaicConfig{
		Method:             method,
		MinCoveragePercent: minCov,
		ValidatePostMosaic: true,
	}, testLogger())
}

func TestBuildBand_SingleSceneClips(t *testing.T) {
	eng := &fakeEngine{files: map[string]*Grid{
		"scene.tif": degreeGrid(10, 10, 0, 10, 7),
	}}
	m := newTestMosaicker(eng, MergeFirst, 92)

	g, err := m.BuildBand("B04", []string{"scene.tif"}, rectBoundary(2, 2, 8, 8))
	if err != nil {
		t.Fatal(err)
	}
	if g.Width != 6 || g.Height != 6 {
		t.Fatalf("clipped grid = %dx%d, want 6x6", g.Width, g.Height)
	}
	if g.Transform[0] != 2 || g.Transform[3] != 8 {
		t.Errorf("clipped origin = (%v, %v), want (2, 8)", g.Transform[0], g.Transform[3])
	}
	for _, v := range g.Data {
		if v != 7 {
			t.Fatalf("pixel = %v, want 7", v)
		}
	}
}

func TestBuildBand_TwoScenesMergeFirst(t *testing.T) {
	west := degreeGrid(6, 10, 0, 10, 1)
	east := degreeGrid(6, 10, 4, 10, 2)
	eng := &fakeEngine{files: map[string]*Grid{"west.tif": west, "east.tif": east}}
	m := newTestMosaicker(eng, MergeFirst, 92)

	g, err := m.BuildBand("B04", []string{"west.tif", "east.tif"}, rectBoundary(0, 0, 10, 10))
	if err != nil {
		t.Fatal(err)
	}
	if g.Width != 10 || g.Height != 10 {
		t.Fatalf("mosaic = %dx%d, want 10x10", g.Width, g.Height)
	}
	// First-wins: the overlap strip keeps west's value.
	if got := g.At(4, 5); got != 1 {
		t.Errorf("overlap pixel = %v, want 1 (first scene)", got)
	}
	if got := g.At(8, 5); got != 2 {
		t.Errorf("east pixel = %v, want 2", got)
	}
}

func TestBuildBand_MergeMethods(t *testing.T) {
	cases := []struct {
		method MergeMethod
		want   float64
	}{
		{MergeFirst, 4},
		{MergeMin, 2},
		{MergeMax, 4},
		{MergeMean, 3},
	}
	for _, tc := range cases {
		t.Run(string(tc.method), func(t *testing.T) {
			a := degreeGrid(4, 4, 0, 4, 4)
			b := degreeGrid(4, 4, 0, 4, 2)
			eng := &fakeEngine{files: map[string]*Grid{"a.tif": a, "b.tif": b}}
			m := newTestMosaicker(eng, tc.method, 92)

			g, err := m.BuildBand("B08", []string{"a.tif", "b.tif"}, rectBoundary(0, 0, 4, 4))
			if err != nil {
				t.Fatal(err)
			}
			if got := g.At(1, 1); got != tc.want {
				t.Errorf("merged pixel = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildBand_NoDataFilledByOtherScene(t *testing.T) {
	holed := degreeGrid(4, 4, 0, 4, 5)
	holed.Set(1, 1, 0) // nodata hole
	filler := degreeGrid(4, 4, 0, 4, 9)
	eng := &fakeEngine{files: map[string]*Grid{"holed.tif": holed, "filler.tif": filler}}
	m := newTestMosaicker(eng, MergeFirst, 92)

	g, err := m.BuildBand("B03", []string{"holed.tif", "filler.tif"}, rectBoundary(0, 0, 4, 4))
	if err != nil {
		t.Fatal(err)
	}
	if got := g.At(1, 1); got != 9 {
		t.Errorf("hole pixel = %v, want 9 from second scene", got)
	}
	if got := g.At(0, 0); got != 5 {
		t.Errorf("pixel = %v, want 5 from first scene", got)
	}
}

func TestBuildBand_ReprojectsMismatchedSRS(t *testing.T) {
	a := degreeGrid(10, 10, 0, 10, 1)
	b := degreeGrid(10, 10, 0, 10, 2)
	b.SRS = "EPSG:32721"
	eng := &fakeEngine{files: map[string]*Grid{"a.tif": a, "b.tif": b}}
	m := newTestMosaicker(eng, MergeFirst, 92)

	g, err := m.BuildBand("B02", []string{"a.tif", "b.tif"}, rectBoundary(0, 0, 10, 10))
	if err != nil {
		t.Fatal(err)
	}
	if g.SRS != "EPSG:4326" {
		t.Errorf("mosaic SRS = %q, want reference EPSG:4326", g.SRS)
	}
}

func TestBuildBand_InsufficientCoverage(t *testing.T) {
	g := degreeGrid(10, 10, 0, 10, 3)
	// Blank out the east half inside the boundary.
	for row := 0; row < 10; row++ {
		for col := 5; col < 10; col++ {
			g.Set(col, row, 0)
		}
	}
	eng := &fakeEngine{files: map[string]*Grid{"scene.tif": g}}
	m := newTestMosaicker(eng, MergeFirst, 92)

	_, err := m.BuildBand("B11", []string{"scene.tif"}, rectBoundary(0, 0, 10, 10))
	var merr *errdefs.MosaicError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MosaicError, got %v", err)
	}
	var cov *errdefs.InsufficientCoverageError
	if !errors.As(err, &cov) {
		t.Fatalf("expected wrapped InsufficientCoverageError, got %v", err)
	}
	if math.Abs(cov.CoveragePercent-50) > 1 {
		t.Errorf("coverage = %v, want about 50", cov.CoveragePercent)
	}
}

func TestBuildBand_ValidationDisabled(t *testing.T) {
	g := degreeGrid(10, 10, 0, 10, 0) // entirely nodata
	eng := &fakeEngine{files: map[string]*Grid{"scene.tif": g}}
	m := NewMosaicker(eng, MosaicConfig{Method: MergeFirst, MinCoveragePercent: 92}, testLogger())

	if _, err := m.BuildBand("B04", []string{"scene.tif"}, rectBoundary(0, 0, 10, 10)); err != nil {
		t.Errorf("validation disabled should not fail on empty mosaic: %v", err)
	}
}

func TestBuildBand_NoPaths(t *testing.T) {
	m := newTestMosaicker(&fakeEngine{}, MergeFirst, 92)
	_, err := m.BuildBand("B04", nil, rectBoundary(0, 0, 1, 1))
	var merr *errdefs.MosaicError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MosaicError, got %v", err)
	}
}

func TestBuildBand_BoundaryOutsideRaster(t *testing.T) {
	eng := &fakeEngine{files: map[string]*Grid{"scene.tif": degreeGrid(4, 4, 0, 4, 1)}}
	m := newTestMosaicker(eng, MergeFirst, 92)
	if _, err := m.BuildBand("B04", []string{"scene.tif"}, rectBoundary(100, 100, 101, 101)); err == nil {
		t.Error("expected error when boundary misses the raster")
	}
}

func TestAligner(t *testing.T) {
	eng := &fakeEngine{}
	a := NewAligner(eng)

	first := degreeGrid(10, 10, 0, 10, 1)
	got, err := a.Align(first)
	if err != nil {
		t.Fatal(err)
	}
	if got != first {
		t.Error("first grid should pass through unchanged")
	}
	def, ok := a.Def()
	if !ok || !def.SameAs(first.GridDef) {
		t.Fatal("canonical def should match the first grid")
	}

	shifted := degreeGrid(10, 10, 1, 10, 2)
	warped, err := a.Align(shifted)
	if err != nil {
		t.Fatal(err)
	}
	if !warped.SameAs(first.GridDef) {
		t.Error("second grid should be warped onto the canonical def")
	}
	// Pixel (5,5) center is lon 5.5 which the shifted grid holds as value 2.
	if got := warped.At(5, 5); got != 2 {
		t.Errorf("warped pixel = %v, want 2", got)
	}
	// Column 0 centers fall outside the shifted grid and become nodata.
	if got := warped.At(0, 0); !warped.IsNoData(got) {
		t.Errorf("out-of-extent pixel = %v, want nodata", got)
	}
}
