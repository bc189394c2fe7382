package errdefs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := NewValidation("boundary", "no usable polygon in %d features", 3)
	if got := err.Error(); got != "invalid boundary: no usable polygon in 3 features" {
		t.Errorf("Error() = %q", got)
	}
	bare := &ValidationError{Message: "empty request"}
	if got := bare.Error(); got != "empty request" {
		t.Errorf("Error() without field = %q", got)
	}
}

func TestInsufficientCoverageError_Error(t *testing.T) {
	err := &InsufficientCoverageError{CoveragePercent: 82.347, RequiredPercent: 95, SceneCount: 3}
	msg := err.Error()
	if !strings.Contains(msg, "82.3%") || !strings.Contains(msg, "3 scene(s)") || !strings.Contains(msg, "95.0%") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestMosaicError_Unwrap(t *testing.T) {
	cause := &InsufficientCoverageError{CoveragePercent: 50, RequiredPercent: 92, SceneCount: 1}
	err := &MosaicError{Band: "B04", SceneCount: 1, Err: cause}

	var cov *InsufficientCoverageError
	if !errors.As(err, &cov) {
		t.Fatal("errors.As did not find the wrapped coverage error")
	}
	if cov.RequiredPercent != 92 {
		t.Errorf("unwrapped RequiredPercent = %v", cov.RequiredPercent)
	}
}

func TestAnalysisError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &AnalysisError{Stage: "mosaicking", RunID: "run-1", Err: fmt.Errorf("writing tile: %w", cause)}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach the root cause")
	}
	if !strings.Contains(err.Error(), "mosaicking") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestIdenticalScenesError_Error(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	err := &IdenticalScenesError{SceneURI: "S2A_T21LYH_20240601", AcquiredAt: at}
	if !strings.Contains(err.Error(), "S2A_T21LYH_20240601") {
		t.Errorf("Error() = %q", err.Error())
	}
}
