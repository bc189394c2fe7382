// Package coverage selects the minimal scene set that covers an area of
// interest around a target date, using a greedy accumulation loop.
package coverage

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/geometry"
	"github.com/minewatch/minewatch/internal/types"
)

// Config controls candidate ordering and stop conditions.
type Config struct {
	// TargetCoveragePercent stops accumulation once reached.
	TargetCoveragePercent float64
	// MaxScenes caps the selection size.
	MaxScenes int
	// MaxDateDiff excludes candidates acquired too far from the target date.
	MaxDateDiff time.Duration
	// MaxCloudCover excludes candidates above this percentage.
	MaxCloudCover float64
	// PreferLowCloud breaks date-distance ties by cloud cover.
	PreferLowCloud bool
}

// Selection is the outcome of a greedy pass: the chosen scenes in selection
// order and the coverage they reach together.
type Selection struct {
	Scenes          []types.SceneRecord
	CoveragePercent float64
	Covered         geometry.Geometry
}

// Resolver performs greedy scene selection.
type Resolver struct {
	cfg      Config
	provider geometry.Provider
	log      *logrus.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config, provider geometry.Provider, log *logrus.Logger) *Resolver {
	return &Resolver{cfg: cfg, provider: provider, log: log}
}

// Select walks candidates ordered by distance from target (cloud cover as
// tiebreak) and adds each scene only when it contributes uncovered area.
// It stops at the coverage target or the scene cap. Coverage never decreases
// as scenes are added. The caller decides whether the reached coverage is
// sufficient.
func (r *Resolver) Select(target time.Time, boundary geometry.Geometry, candidates []types.SceneRecord) (*Selection, error) {
	if _, err := geometry.CoveragePercent(boundary, boundary); err != nil {
		return nil, err
	}

	ordered := make([]types.SceneRecord, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		di := absDuration(ordered[i].AcquiredAt.Sub(target))
		dj := absDuration(ordered[j].AcquiredAt.Sub(target))
		if di != dj || !r.cfg.PreferLowCloud {
			return di < dj
		}
		return ordered[i].CloudCoverOrDefault(100) < ordered[j].CloudCoverOrDefault(100)
	})

	sel := &Selection{}
	for _, s := range ordered {
		if len(sel.Scenes) >= r.cfg.MaxScenes {
			break
		}
		if absDuration(s.AcquiredAt.Sub(target)) > r.cfg.MaxDateDiff {
			continue
		}
		if s.CloudCover != nil && *s.CloudCover > r.cfg.MaxCloudCover {
			continue
		}
		if s.URI == "" || len(s.Footprint) == 0 {
			continue
		}
		footprint, err := geometry.ResolveBoundary(s.Footprint, r.provider, r.log)
		if err != nil {
			r.log.WithError(err).WithField("scene_id", s.ID).Debug("Skipping scene with unusable footprint")
			continue
		}
		if !boundary.Intersects(footprint) {
			continue
		}
		contribution, err := boundary.Intersection(footprint)
		if err != nil || contribution.IsEmpty() {
			continue
		}
		if sel.Covered != nil {
			fresh, err := contribution.Difference(sel.Covered)
			if err != nil || fresh.IsEmpty() {
				continue
			}
		}
		if sel.Covered == nil {
			sel.Covered = contribution
		} else {
			u, err := sel.Covered.Union(contribution)
			if err != nil {
				r.log.WithError(err).WithField("scene_id", s.ID).Debug("Skipping scene that failed to merge")
				continue
			}
			sel.Covered = u
		}
		sel.Scenes = append(sel.Scenes, s)
		cov, err := geometry.CoveragePercent(boundary, sel.Covered)
		if err != nil {
			return nil, err
		}
		sel.CoveragePercent = cov
		r.log.WithFields(logrus.Fields{
			"scene_id": s.ID, "coverage": cov, "selected": len(sel.Scenes),
		}).Debug("Scene added to selection")
		if cov >= r.cfg.TargetCoveragePercent {
			break
		}
	}
	return sel, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
