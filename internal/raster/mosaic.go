package raster

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/errdefs"
	"github.com/minewatch/minewatch/internal/geometry"
)

// MergeMethod decides how overlapping valid pixels combine.
type MergeMethod string

const (
	MergeFirst MergeMethod = "first"
	MergeMin   MergeMethod = "min"
	MergeMax   MergeMethod = "max"
	MergeMean  MergeMethod = "mean"
)

// MosaicConfig controls merging and post-mosaic validation.
type MosaicConfig struct {
	Method MergeMethod
	// MinCoveragePercent is the valid-pixel share of the boundary the final
	// mosaic must reach when ValidatePostMosaic is set.
	MinCoveragePercent float64
	ValidatePostMosaic bool
}

// mosaicEngine is the slice of Engine the mosaicker needs.
type mosaicEngine interface {
	Reader
	Warper
	Rasterizer
}

// Mosaicker assembles one band from one or more scene files, clipped to the
// area of interest.
type Mosaicker struct {
	eng mosaicEngine
	cfg MosaicConfig
	log *logrus.Logger
}

// NewMosaicker creates a Mosaicker.
func NewMosaicker(eng mosaicEngine, cfg MosaicConfig, log *logrus.Logger) *Mosaicker {
	if cfg.Method == "" {
		cfg.Method = MergeFirst
	}
	return &Mosaicker{eng: eng, cfg: cfg, log: log}
}

// BuildBand reads the band from every path, reprojects mismatched scenes to
// the first scene's reference system, merges overlaps, and clips the result
// to boundary. Single-scene inputs skip the merge entirely.
func (m *Mosaicker) BuildBand(band string, paths []string, boundary geometry.Geometry) (*Grid, error) {
	fail := func(err error) (*Grid, error) {
		return nil, &errdefs.MosaicError{Band: band, SceneCount: len(paths), Err: err}
	}
	if len(paths) == 0 {
		return fail(errdefs.NewValidation("paths", "no scene files for band"))
	}

	grids := make([]*Grid, 0, len(paths))
	for _, p := range paths {
		g, err := m.eng.Read(p)
		if err != nil {
			return fail(fmt.Errorf("reading %s: %w", p, err))
		}
		grids = append(grids, g)
	}

	merged := grids[0]
	if len(grids) > 1 {
		var err error
		merged, err = m.merge(band, grids)
		if err != nil {
			return fail(err)
		}
	}

	clipped, validInside, inside, err := m.clip(merged, boundary)
	if err != nil {
		return fail(err)
	}

	coverage := 0.0
	if inside > 0 {
		coverage = float64(validInside) / float64(inside) * 100
	}
	m.log.WithFields(logrus.Fields{
		"band": band, "scenes": len(paths), "coverage": coverage,
	}).Debug("Band mosaic assembled")

	if m.cfg.ValidatePostMosaic && coverage < m.cfg.MinCoveragePercent {
		return fail(&errdefs.InsufficientCoverageError{
			CoveragePercent: coverage,
			RequiredPercent: m.cfg.MinCoveragePercent,
			SceneCount:      len(paths),
		})
	}
	return clipped, nil
}

// merge warps every grid onto a shared target covering all inputs at the
// first grid's resolution and combines overlapping pixels.
func (m *Mosaicker) merge(band string, grids []*Grid) (*Grid, error) {
	ref := grids[0]
	aligned := make([]*Grid, 0, len(grids))
	for i, g := range grids {
		if g.SRS != ref.SRS {
			m.log.WithFields(logrus.Fields{
				"band": band, "scene_index": i, "from": g.SRS, "to": ref.SRS,
			}).Debug("Reprojecting scene for mosaic")
			rg, err := m.eng.Reproject(g, ref.SRS)
			if err != nil {
				return nil, fmt.Errorf("reprojecting scene %d: %w", i, err)
			}
			g = rg
		}
		aligned = append(aligned, g)
	}

	def, err := unionDef(aligned)
	if err != nil {
		return nil, err
	}
	warped := make([]*Grid, 0, len(aligned))
	for i, g := range aligned {
		if g.SameAs(def) {
			warped = append(warped, g)
			continue
		}
		w, err := m.eng.WarpTo(g, def)
		if err != nil {
			return nil, fmt.Errorf("resampling scene %d: %w", i, err)
		}
		warped = append(warped, w)
	}

	out := NewGrid(def, ref.NoData)
	counts := make([]int, len(out.Data))
	for _, g := range warped {
		for i, v := range g.Data {
			if g.IsNoData(v) || math.IsNaN(v) {
				continue
			}
			switch m.cfg.Method {
			case MergeFirst:
				if counts[i] == 0 {
					out.Data[i] = v
				}
			case MergeMin:
				if counts[i] == 0 || v < out.Data[i] {
					out.Data[i] = v
				}
			case MergeMax:
				if counts[i] == 0 || v > out.Data[i] {
					out.Data[i] = v
				}
			case MergeMean:
				if counts[i] == 0 {
					out.Data[i] = v
				} else {
					out.Data[i] += v
				}
			default:
				return nil, errdefs.NewValidation("MergeMethod", "unknown method %q", m.cfg.Method)
			}
			counts[i]++
		}
	}
	if m.cfg.Method == MergeMean {
		for i, n := range counts {
			if n > 1 {
				out.Data[i] /= float64(n)
			}
		}
	}
	return out, nil
}

// unionDef builds a grid definition covering every input at the first
// input's resolution. Inputs must be north-up and share an SRS.
func unionDef(grids []*Grid) (GridDef, error) {
	ref := grids[0]
	px, py := ref.Transform[1], ref.Transform[5]
	if px <= 0 || py >= 0 || ref.Transform[2] != 0 || ref.Transform[4] != 0 {
		return GridDef{}, fmt.Errorf("reference grid is not north-up")
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, g := range grids {
		gMinX, gMinY, gMaxX, gMaxY := g.Bounds()
		minX = math.Min(minX, gMinX)
		minY = math.Min(minY, gMinY)
		maxX = math.Max(maxX, gMaxX)
		maxY = math.Max(maxY, gMaxY)
	}
	w := int(math.Ceil((maxX - minX) / px))
	h := int(math.Ceil((maxY - minY) / -py))
	if w <= 0 || h <= 0 {
		return GridDef{}, fmt.Errorf("degenerate mosaic extent")
	}
	return GridDef{
		Width:     w,
		Height:    h,
		Transform: [6]float64{minX, px, 0, maxY, 0, py},
		SRS:       ref.SRS,
	}, nil
}

// clip masks pixels outside boundary to nodata and crops the grid to the
// boundary's pixel bounding box. It returns the clipped grid along with the
// valid and total pixel counts inside the boundary.
func (m *Mosaicker) clip(g *Grid, boundary geometry.Geometry) (*Grid, int, int, error) {
	mask, err := m.eng.RasterizeMask(boundary, g.GridDef)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("rasterizing boundary: %w", err)
	}
	if len(mask) != len(g.Data) {
		return nil, 0, 0, fmt.Errorf("boundary mask size %d does not match grid %d", len(mask), len(g.Data))
	}

	minCol, minRow := g.Width, g.Height
	maxCol, maxRow := -1, -1
	inside, valid := 0, 0
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			i := row*g.Width + col
			if !mask[i] {
				continue
			}
			inside++
			if !g.IsNoData(g.Data[i]) && !math.IsNaN(g.Data[i]) {
				valid++
			}
			if col < minCol {
				minCol = col
			}
			if col > maxCol {
				maxCol = col
			}
			if row < minRow {
				minRow = row
			}
			if row > maxRow {
				maxRow = row
			}
		}
	}
	if maxCol < 0 {
		return nil, 0, 0, fmt.Errorf("boundary does not overlap the raster extent")
	}

	def := GridDef{
		Width:  maxCol - minCol + 1,
		Height: maxRow - minRow + 1,
		SRS:    g.SRS,
	}
	ox, oy := g.PixelToWorld(float64(minCol), float64(minRow))
	def.Transform = g.Transform
	def.Transform[0] = ox
	def.Transform[3] = oy

	out := NewGrid(def, g.NoData)
	for row := 0; row < def.Height; row++ {
		for col := 0; col < def.Width; col++ {
			src := (row+minRow)*g.Width + (col + minCol)
			if mask[src] {
				out.Set(col, row, g.Data[src])
			}
		}
	}
	return out, valid, inside, nil
}
