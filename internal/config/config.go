// Package config provides shared configuration loading from environment
// and defaults for the MineWatch analysis components.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/minewatch/minewatch/internal/errdefs"
)

// GetEnv returns the value of key from the environment, or defaultValue if unset or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

// GetEnvDuration returns the duration for key, or defaultValue if unset/invalid.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetEnvFloat returns the float value for key, or defaultValue if unset/invalid.
func GetEnvFloat(key string, defaultValue float64) float64 {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// GetEnvInt returns the int value for key, or defaultValue if unset/invalid.
func GetEnvInt(key string, defaultValue int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvBool returns the bool value for key, or defaultValue if unset/invalid.
func GetEnvBool(key string, defaultValue bool) bool {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue
	}
	return b
}

// AnalysisConfig holds the coverage, temporal, and mosaicking thresholds used
// by the analysis pipeline.
type AnalysisConfig struct {
	// MinCoveragePercent is the coverage a selected scene set must reach
	// before an epoch is considered analyzable.
	MinCoveragePercent float64
	// MosaicThreshold is the single-scene coverage above which mosaicking is
	// skipped for that epoch.
	MosaicThreshold float64
	// TargetCoverage is the coverage the greedy selector aims for before it
	// stops adding scenes.
	TargetCoverage float64
	// DownloadMinimum is the least coverage worth fetching imagery for.
	DownloadMinimum float64

	MaxDateDiffDays           float64
	MaxBaselineLatestDiffDays float64
	MaxScenes                 int
	MaxCloudCover             float64
	PreferLowCloud            bool

	EpochToleranceMinutes   float64
	MinEpochCoveragePercent float64

	MergeMethod        string
	ValidatePostMosaic bool
	ParallelBands      bool
}

// AnalyzerConfig holds configuration for the analyzer command: where imagery
// lives, where rules are stored, and where index artifacts go.
type AnalyzerConfig struct {
	ImageryDir       string
	RulesPath        string
	RendererEndpoint string
	RendererAPIKey   string
	RendererTimeout  time.Duration
	SaveIndices      bool
	HTTPAddr         string
}

// DefaultAnalysisConfig returns analysis thresholds from environment with defaults.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		MinCoveragePercent:        GetEnvFloat("MW_MIN_COVERAGE_PERCENT", 95),
		MosaicThreshold:           GetEnvFloat("MW_MOSAIC_THRESHOLD", 92),
		TargetCoverage:            GetEnvFloat("MW_TARGET_COVERAGE", 98),
		DownloadMinimum:           GetEnvFloat("MW_DOWNLOAD_MINIMUM", 80),
		MaxDateDiffDays:           GetEnvFloat("MW_MAX_DATE_DIFF_DAYS", 30),
		MaxBaselineLatestDiffDays: GetEnvFloat("MW_MAX_BASELINE_LATEST_DIFF_DAYS", 365),
		MaxScenes:                 GetEnvInt("MW_MAX_SCENES", 8),
		MaxCloudCover:             GetEnvFloat("MW_MAX_CLOUD_COVER", 80),
		PreferLowCloud:            GetEnvBool("MW_PREFER_LOW_CLOUD", true),
		EpochToleranceMinutes:     GetEnvFloat("MW_EPOCH_TOLERANCE_MINUTES", 30),
		MinEpochCoveragePercent:   GetEnvFloat("MW_MIN_EPOCH_COVERAGE_PERCENT", 95),
		MergeMethod:               GetEnv("MW_MERGE_METHOD", "first"),
		ValidatePostMosaic:        GetEnvBool("MW_VALIDATE_POST_MOSAIC", true),
		ParallelBands:             GetEnvBool("MW_PARALLEL_BANDS", false),
	}
}

// DefaultAnalyzerConfig returns analyzer command config from environment.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		ImageryDir:       GetEnv("MW_IMAGERY_DIR", "./imagery"),
		RulesPath:        GetEnv("MW_RULES_PATH", ""),
		RendererEndpoint: GetEnv("MW_RENDERER_ENDPOINT", ""),
		RendererAPIKey:   GetEnv("MW_RENDERER_API_KEY", ""),
		RendererTimeout:  GetEnvDuration("MW_RENDERER_TIMEOUT", 30*time.Second),
		SaveIndices:      GetEnvBool("MW_SAVE_INDICES", false),
		HTTPAddr:         GetEnv("MW_HTTP_ADDR", ":8080"),
	}
}

// Validate checks percentage ranges and the ordering between coverage
// thresholds. A MosaicThreshold above MinCoveragePercent would demand more of
// a single scene than of a full mosaic.
func (c AnalysisConfig) Validate() error {
	percents := map[string]float64{
		"MinCoveragePercent":      c.MinCoveragePercent,
		"MosaicThreshold":         c.MosaicThreshold,
		"TargetCoverage":          c.TargetCoverage,
		"DownloadMinimum":         c.DownloadMinimum,
		"MaxCloudCover":           c.MaxCloudCover,
		"MinEpochCoveragePercent": c.MinEpochCoveragePercent,
	}
	for name, v := range percents {
		if v < 0 || v > 100 {
			return errdefs.NewValidation(name, "must be between 0 and 100, got %v", v)
		}
	}
	if c.MosaicThreshold > c.MinCoveragePercent {
		return errdefs.NewValidation("MosaicThreshold",
			"must not exceed MinCoveragePercent (%v > %v)", c.MosaicThreshold, c.MinCoveragePercent)
	}
	if c.TargetCoverage < c.MinCoveragePercent {
		return errdefs.NewValidation("TargetCoverage",
			"must be at least MinCoveragePercent (%v < %v)", c.TargetCoverage, c.MinCoveragePercent)
	}
	if c.DownloadMinimum > c.MosaicThreshold {
		return errdefs.NewValidation("DownloadMinimum",
			"must not exceed MosaicThreshold (%v > %v)", c.DownloadMinimum, c.MosaicThreshold)
	}
	if c.MaxScenes < 2 {
		return errdefs.NewValidation("MaxScenes", "must be at least 2, got %d", c.MaxScenes)
	}
	if c.MaxDateDiffDays <= 0 {
		return errdefs.NewValidation("MaxDateDiffDays", "must be positive, got %v", c.MaxDateDiffDays)
	}
	if c.MaxBaselineLatestDiffDays <= 0 {
		return errdefs.NewValidation("MaxBaselineLatestDiffDays", "must be positive, got %v", c.MaxBaselineLatestDiffDays)
	}
	if c.EpochToleranceMinutes <= 0 {
		return errdefs.NewValidation("EpochToleranceMinutes", "must be positive, got %v", c.EpochToleranceMinutes)
	}
	switch c.MergeMethod {
	case "first", "min", "max", "mean":
	default:
		return errdefs.NewValidation("MergeMethod", "must be one of first, min, max, mean; got %q", c.MergeMethod)
	}
	return nil
}
