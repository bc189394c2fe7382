// Package errdefs defines the typed error taxonomy shared by the analysis
// pipeline and its stages. Callers classify failures with errors.As.
package errdefs

import (
	"fmt"
	"time"
)

// ValidationError reports invalid or unusable input (boundary, scene record,
// configuration value).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidation builds a ValidationError for field with a formatted message.
func NewValidation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientCoverageError reports that the available scenes cannot cover
// enough of the area of interest.
type InsufficientCoverageError struct {
	CoveragePercent float64
	RequiredPercent float64
	SceneCount      int
}

func (e *InsufficientCoverageError) Error() string {
	return fmt.Sprintf("insufficient coverage: %.1f%% of the area covered by %d scene(s), need %.1f%%",
		e.CoveragePercent, e.SceneCount, e.RequiredPercent)
}

// MosaicError reports a failure while assembling a band mosaic.
type MosaicError struct {
	Band       string
	SceneCount int
	Err        error
}

func (e *MosaicError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mosaic failed for band %s (%d scenes): %v", e.Band, e.SceneCount, e.Err)
	}
	return fmt.Sprintf("mosaic failed for band %s (%d scenes)", e.Band, e.SceneCount)
}

func (e *MosaicError) Unwrap() error { return e.Err }

// IdenticalScenesError reports that baseline and latest refer to the same
// scene, which makes change detection meaningless.
type IdenticalScenesError struct {
	SceneURI   string
	AcquiredAt time.Time
}

func (e *IdenticalScenesError) Error() string {
	return fmt.Sprintf("baseline and latest are the same scene %q (acquired %s)",
		e.SceneURI, e.AcquiredAt.Format(time.RFC3339))
}

// TemporalInconsistencyError reports baseline/latest acquisition dates that
// violate ordering or spread limits.
type TemporalInconsistencyError struct {
	BaselineDate   time.Time
	LatestDate     time.Time
	MaxAllowedDiff time.Duration
}

func (e *TemporalInconsistencyError) Error() string {
	return fmt.Sprintf("temporal inconsistency: baseline %s vs latest %s (max allowed spread %s)",
		e.BaselineDate.Format("2006-01-02"), e.LatestDate.Format("2006-01-02"), e.MaxAllowedDiff)
}

// CatalogUnavailableError reports that no scene catalog could serve the
// request, so multi-scene composition is impossible.
type CatalogUnavailableError struct {
	Reason string
}

func (e *CatalogUnavailableError) Error() string {
	return fmt.Sprintf("scene catalog unavailable: %s", e.Reason)
}

// AnalysisError wraps an unclassified failure with the pipeline stage and run
// it occurred in.
type AnalysisError struct {
	Stage string
	RunID string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis run %s failed at stage %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
