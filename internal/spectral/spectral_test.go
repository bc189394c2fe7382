package spectral

import (
	"math"
	"testing"

	"github.com/minewatch/minewatch/internal/raster"
)

func grid(values ...float64) *raster.Grid {
	g := raster.NewGrid(raster.GridDef{
		Width: len(values), Height: 1,
		Transform: [6]float64{0, 1, 0, 1, 0, -1},
		SRS:       "EPSG:4326",
	}, 0)
	copy(g.Data, values)
	return g
}

func TestNDVI_KnownValue(t *testing.T) {
	red := grid(100)
	nir := grid(800)
	out, err := NDVI(red, nir)
	if err != nil {
		t.Fatal(err)
	}
	// (800-100)/(800+100)
	if math.Abs(out.Data[0]-0.7777777778) > 1e-6 {
		t.Errorf("NDVI = %v, want 0.7777778", out.Data[0])
	}
}

func TestNDVI_ZeroInputsYieldZero(t *testing.T) {
	out, err := NDVI(grid(0), grid(0))
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0] != 0 {
		t.Errorf("NDVI(0, 0) = %v, want 0", out.Data[0])
	}
	if math.IsNaN(out.Data[0]) {
		t.Error("NDVI produced NaN")
	}
}

func TestNDWI(t *testing.T) {
	out, err := NDWI(grid(600), grid(200))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(out.Data[0]-0.5) > 1e-9 {
		t.Errorf("NDWI = %v, want 0.5", out.Data[0])
	}
}

func TestBSI(t *testing.T) {
	blue, red, nir, swir := grid(100), grid(300), grid(200), grid(400)
	out, err := BSI(blue, red, nir, swir)
	if err != nil {
		t.Fatal(err)
	}
	// ((400+300)-(200+100))/((400+300)+(200+100)) = 400/1000
	if math.Abs(out.Data[0]-0.4) > 1e-9 {
		t.Errorf("BSI = %v, want 0.4", out.Data[0])
	}
}

func TestIndices_AllFiniteOnZeroGrids(t *testing.T) {
	z := grid(0, 0, 0, 0)
	ndvi, _ := NDVI(z, z)
	ndwi, _ := NDWI(z, z)
	bsi, _ := BSI(z, z, z, z)
	for _, out := range []*raster.Grid{ndvi, ndwi, bsi} {
		for i, v := range out.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("pixel %d is not finite: %v", i, v)
			}
			if v != 0 {
				t.Fatalf("pixel %d = %v, want 0", i, v)
			}
		}
	}
}

func TestIndices_RejectMismatchedGrids(t *testing.T) {
	a := grid(1, 2)
	b := grid(1, 2, 3)
	if _, err := NDVI(a, b); err == nil {
		t.Error("expected error for mismatched grids")
	}
}

func TestIndices_RangeBounded(t *testing.T) {
	red := grid(50, 500, 1000, 0)
	nir := grid(900, 500, 100, 700)
	out, err := NDVI(red, nir)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Data {
		if v < -1 || v > 1 {
			t.Errorf("NDVI pixel %d = %v, outside [-1, 1]", i, v)
		}
	}
}
