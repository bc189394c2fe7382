// Package spectral computes normalized spectral indices from aligned
// reflectance grids. Zero-filled pixels (the Sentinel-2 nodata convention)
// produce an index of 0 rather than NaN, so downstream differencing stays
// finite everywhere.
package spectral

import (
	"math"

	"github.com/minewatch/minewatch/internal/errdefs"
	"github.com/minewatch/minewatch/internal/raster"
)

// Sentinel-2 band names used throughout the pipeline.
const (
	BandBlue  = "B02"
	BandGreen = "B03"
	BandRed   = "B04"
	BandNIR   = "B08"
	BandSWIR  = "B11"
)

// RequiredBands returns the bands every analysis run needs, in a stable order.
func RequiredBands() []string {
	return []string{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR}
}

// NDVI computes (NIR - RED) / (NIR + RED).
func NDVI(red, nir *raster.Grid) (*raster.Grid, error) {
	if err := sameGrid("NDVI", red, nir); err != nil {
		return nil, err
	}
	out := newIndexGrid(red)
	for i := range out.Data {
		out.Data[i] = safeRatio(nir.Data[i]-red.Data[i], nir.Data[i]+red.Data[i])
	}
	return out, nil
}

// NDWI computes (GREEN - NIR) / (GREEN + NIR).
func NDWI(green, nir *raster.Grid) (*raster.Grid, error) {
	if err := sameGrid("NDWI", green, nir); err != nil {
		return nil, err
	}
	out := newIndexGrid(green)
	for i := range out.Data {
		out.Data[i] = safeRatio(green.Data[i]-nir.Data[i], green.Data[i]+nir.Data[i])
	}
	return out, nil
}

// BSI computes ((SWIR + RED) - (NIR + BLUE)) / ((SWIR + RED) + (NIR + BLUE)).
func BSI(blue, red, nir, swir *raster.Grid) (*raster.Grid, error) {
	if err := sameGrid("BSI", blue, red, nir, swir); err != nil {
		return nil, err
	}
	out := newIndexGrid(blue)
	for i := range out.Data {
		a := swir.Data[i] + red.Data[i]
		b := nir.Data[i] + blue.Data[i]
		out.Data[i] = safeRatio(a-b, a+b)
	}
	return out, nil
}

// safeRatio divides and maps every non-finite outcome to 0.
func safeRatio(num, den float64) float64 {
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func newIndexGrid(ref *raster.Grid) *raster.Grid {
	return raster.NewGrid(ref.GridDef, 0)
}

func sameGrid(index string, grids ...*raster.Grid) error {
	ref := grids[0]
	for _, g := range grids[1:] {
		if !g.SameAs(ref.GridDef) {
			return errdefs.NewValidation(index, "input bands are not on the same pixel grid")
		}
	}
	return nil
}
