// Package change turns pairs of spectral index grids into discrete change
// zones by thresholding per-pixel deltas and polygonizing the results.
package change

import (
	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/errdefs"
	"github.com/minewatch/minewatch/internal/geometry"
	"github.com/minewatch/minewatch/internal/raster"
	"github.com/minewatch/minewatch/internal/types"
)

// Per-pixel delta thresholds between baseline and latest.
const (
	// VegetationLossDelta flags pixels whose NDVI dropped by more than this.
	VegetationLossDelta = 0.15
	// BSIExpansionDelta flags pixels whose bare-soil index rose by more than
	// this. Kept deliberately higher than the vegetation threshold so thin
	// haze over rock does not read as new excavation.
	BSIExpansionDelta = 0.25
	// WaterGainDelta flags pixels whose NDWI rose by more than this.
	WaterGainDelta = 0.20
)

// Minimum zone areas in hectares; anything smaller is sensor noise.
const (
	MinZoneAreaHa      = 0.1
	MinWaterZoneAreaHa = 0.05
)

// IndexSet holds the three index grids for one epoch, all on one pixel grid.
type IndexSet struct {
	NDVI *raster.Grid
	NDWI *raster.Grid
	BSI  *raster.Grid
}

func (s IndexSet) def() (raster.GridDef, error) {
	if s.NDVI == nil || s.NDWI == nil || s.BSI == nil {
		return raster.GridDef{}, errdefs.NewValidation("indices", "missing index grid")
	}
	if !s.NDWI.SameAs(s.NDVI.GridDef) || !s.BSI.SameAs(s.NDVI.GridDef) {
		return raster.GridDef{}, errdefs.NewValidation("indices", "index grids are not aligned")
	}
	return s.NDVI.GridDef, nil
}

// Detector extracts change zones from index pairs.
type Detector struct {
	vec      raster.Vectorizer
	provider geometry.Provider
	log      *logrus.Logger
}

// NewDetector creates a Detector.
func NewDetector(vec raster.Vectorizer, provider geometry.Provider, log *logrus.Logger) *Detector {
	return &Detector{vec: vec, provider: provider, log: log}
}

// DetectZones compares baseline and latest indices pixel by pixel and
// returns the polygonized zones per change type, dropping zones below the
// per-type minimum area.
func (d *Detector) DetectZones(baseline, latest IndexSet) ([]types.Zone, error) {
	bdef, err := baseline.def()
	if err != nil {
		return nil, err
	}
	ldef, err := latest.def()
	if err != nil {
		return nil, err
	}
	if !bdef.SameAs(ldef) {
		return nil, errdefs.NewValidation("indices", "baseline and latest are not on the same pixel grid")
	}

	kinds := []struct {
		zoneType  types.ZoneType
		before    *raster.Grid
		after     *raster.Grid
		delta     float64
		inverted  bool // true when change means the index dropped
		minAreaHa float64
	}{
		{types.ZoneVegetationLoss, baseline.NDVI, latest.NDVI, VegetationLossDelta, true, MinZoneAreaHa},
		{types.ZoneMiningExpansion, baseline.BSI, latest.BSI, BSIExpansionDelta, false, MinZoneAreaHa},
		{types.ZoneWaterAccumulation, baseline.NDWI, latest.NDWI, WaterGainDelta, false, MinWaterZoneAreaHa},
	}

	var zones []types.Zone
	for _, k := range kinds {
		mask := make([]bool, len(k.before.Data))
		hits := 0
		for i := range mask {
			delta := k.after.Data[i] - k.before.Data[i]
			if k.inverted {
				delta = -delta
			}
			if delta > k.delta {
				mask[i] = true
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		geoms, err := d.vec.Polygonize(mask, bdef)
		if err != nil {
			return nil, err
		}
		for _, g := range geoms {
			areaHa, err := d.provider.AreaHectares(g)
			if err != nil {
				d.log.WithError(err).WithField("zone_type", k.zoneType).Warn("Skipping unmeasurable zone")
				continue
			}
			if areaHa < k.minAreaHa {
				continue
			}
			raw, err := g.MarshalGeoJSON()
			if err != nil {
				d.log.WithError(err).WithField("zone_type", k.zoneType).Warn("Skipping unserializable zone")
				continue
			}
			zones = append(zones, types.Zone{Type: k.zoneType, AreaHa: areaHa, Geometry: raw})
		}
		d.log.WithFields(logrus.Fields{
			"zone_type": k.zoneType, "pixels": hits, "zones": len(zones),
		}).Debug("Change mask polygonized")
	}
	return zones, nil
}
