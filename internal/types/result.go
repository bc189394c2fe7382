package types

import "time"

// ZoneStats aggregates detected zones of one type.
type ZoneStats struct {
	Count       int     `json:"count"`
	TotalAreaHa float64 `json:"total_area_ha"`
}

// EpochInfo records which coverage sets the analysis compared and whether the
// fast single-scene path was taken.
type EpochInfo struct {
	Baseline *CoverageSet `json:"baseline,omitempty"`
	Latest   *CoverageSet `json:"latest,omitempty"`
	FastPath bool         `json:"fast_path"`
}

// ResultMetadata carries provenance for an analysis run.
type ResultMetadata struct {
	RequiredBands []string            `json:"required_bands"`
	ResolvedPaths map[string][]string `json:"resolved_paths,omitempty"`
	MergeMethod   string              `json:"merge_method,omitempty"`
}

// AnalysisResult is the outcome of one change-detection run.
type AnalysisResult struct {
	RunID      string                 `json:"run_id"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Zones      []Zone                 `json:"zones"`
	Alerts     []Alert                `json:"alerts"`
	Stats      map[ZoneType]ZoneStats `json:"stats"`
	Epochs     EpochInfo              `json:"epochs"`
	Metadata   ResultMetadata         `json:"metadata"`
}
