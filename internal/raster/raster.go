// Package raster defines the in-memory raster model and the operations the
// pipeline needs from a raster backend: reading, warping, rasterizing
// boundaries, and vectorizing masks. The GDAL implementation lives in this
// package; tests inject fakes.
package raster

import (
	"math"

	"github.com/minewatch/minewatch/internal/geometry"
)

// GridDef describes a raster grid: its dimensions, affine geotransform, and
// spatial reference (WKT or "EPSG:nnnn").
type GridDef struct {
	Width     int
	Height    int
	Transform [6]float64
	SRS       string
}

// Grid is one band of raster data in row-major order. NoData marks invalid
// pixels; a value of 0 follows the Sentinel-2 convention.
type Grid struct {
	GridDef
	Data   []float64
	NoData float64
}

// NewGrid allocates a grid filled with the nodata value.
func NewGrid(def GridDef, nodata float64) *Grid {
	g := &Grid{GridDef: def, NoData: nodata, Data: make([]float64, def.Width*def.Height)}
	if nodata != 0 {
		for i := range g.Data {
			g.Data[i] = nodata
		}
	}
	return g
}

// At returns the pixel value at column x, row y.
func (g *Grid) At(x, y int) float64 { return g.Data[y*g.Width+x] }

// Set writes the pixel value at column x, row y.
func (g *Grid) Set(x, y int, v float64) { g.Data[y*g.Width+x] = v }

// IsNoData reports whether v is the grid's nodata value.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(g.NoData) {
		return math.IsNaN(v)
	}
	return v == g.NoData
}

const transformEps = 1e-9

// SameAs reports whether two grid definitions describe the same pixel grid.
func (d GridDef) SameAs(o GridDef) bool {
	if d.Width != o.Width || d.Height != o.Height || d.SRS != o.SRS {
		return false
	}
	for i := range d.Transform {
		if math.Abs(d.Transform[i]-o.Transform[i]) > transformEps {
			return false
		}
	}
	return true
}

// PixelToWorld maps the pixel corner (col, row) through the geotransform.
func (d GridDef) PixelToWorld(col, row float64) (x, y float64) {
	t := d.Transform
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// Bounds returns the min/max world coordinates of the grid extent.
func (d GridDef) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	corners := [4][2]float64{{0, 0}, {float64(d.Width), 0}, {0, float64(d.Height)}, {float64(d.Width), float64(d.Height)}}
	for _, c := range corners {
		x, y := d.PixelToWorld(c[0], c[1])
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	return minX, minY, maxX, maxY
}

// Reader loads one band from a file.
type Reader interface {
	Read(path string) (*Grid, error)
}

// Warper resamples grids bilinearly.
type Warper interface {
	// Reproject resamples src into dstSRS, choosing an output grid that
	// covers src at a comparable resolution.
	Reproject(src *Grid, dstSRS string) (*Grid, error)
	// WarpTo resamples src exactly onto def.
	WarpTo(src *Grid, def GridDef) (*Grid, error)
}

// Rasterizer burns a lon/lat geometry into a pixel mask.
type Rasterizer interface {
	// RasterizeMask returns a row-major mask over def where true means the
	// pixel center falls inside g.
	RasterizeMask(g geometry.Geometry, def GridDef) ([]bool, error)
}

// Vectorizer traces a pixel mask back into lon/lat geometries.
type Vectorizer interface {
	// Polygonize returns one geometry per connected true region of mask.
	Polygonize(mask []bool, def GridDef) ([]geometry.Geometry, error)
}

// Writer stores a grid as a GeoTIFF.
type Writer interface {
	Write(path string, g *Grid) error
}

// Engine bundles every raster capability the pipeline uses.
type Engine interface {
	Reader
	Warper
	Rasterizer
	Vectorizer
	Writer
}
