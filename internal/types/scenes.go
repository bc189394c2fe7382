// Package types defines the shared data model for scenes, coverage sets,
// change zones, alerts, and analysis results.
package types

import (
	"encoding/json"
	"time"
)

// SceneRecord describes one catalog entry for a satellite acquisition.
// Footprint is a raw GeoJSON geometry in lon/lat; CloudCover is nil when the
// catalog did not report it.
type SceneRecord struct {
	ID         string          `json:"id"`
	URI        string          `json:"uri"`
	AcquiredAt time.Time       `json:"acquired_at"`
	CloudCover *float64        `json:"cloud_cover,omitempty"`
	Footprint  json.RawMessage `json:"footprint,omitempty"`
}

// CloudCoverOrDefault returns the reported cloud cover, or def when the
// catalog omitted it.
func (s *SceneRecord) CloudCoverOrDefault(def float64) float64 {
	if s.CloudCover == nil {
		return def
	}
	return *s.CloudCover
}

// CoverageSet is a temporal epoch: scenes acquired close together in time
// whose combined footprints cover the area of interest.
type CoverageSet struct {
	EpochTime       time.Time `json:"epoch_time"`
	SceneIDs        []string  `json:"scene_ids"`
	SceneURIs       []string  `json:"scene_uris"`
	CoveragePercent float64   `json:"coverage_percent"`
}
