package types

import "encoding/json"

// ZoneType classifies a detected change zone.
type ZoneType string

const (
	ZoneVegetationLoss    ZoneType = "vegetation_loss"
	ZoneMiningExpansion   ZoneType = "mining_expansion"
	ZoneWaterAccumulation ZoneType = "water_accumulation"
)

// Zone is one contiguous region of detected change.
// Geometry is a raw GeoJSON geometry in lon/lat.
type Zone struct {
	Type     ZoneType        `json:"type"`
	AreaHa   float64         `json:"area_ha"`
	Geometry json.RawMessage `json:"geometry"`
}
