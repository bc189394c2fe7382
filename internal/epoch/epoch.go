// Package epoch groups catalog scenes into temporal epochs: acquisitions
// close enough in time to be treated as one observation of the area.
package epoch

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/geometry"
	"github.com/minewatch/minewatch/internal/types"
)

// Config controls scene filtering and epoch formation.
type Config struct {
	// MaxCloudCover excludes scenes above this percentage.
	MaxCloudCover float64
	// Tolerance is the maximum gap between a scene and its epoch's anchor.
	Tolerance time.Duration
	// MinCoveragePercent discards epochs whose combined footprints cover
	// less of the boundary than this.
	MinCoveragePercent float64
}

// Grouper builds coverage sets from catalog scenes.
type Grouper struct {
	cfg      Config
	provider geometry.Provider
	log      *logrus.Logger
}

// NewGrouper creates a Grouper.
func NewGrouper(cfg Config, provider geometry.Provider, log *logrus.Logger) *Grouper {
	return &Grouper{cfg: cfg, provider: provider, log: log}
}

// BuildCoverageSets filters unusable scenes, groups the rest into epochs
// anchored on the newest scene of each group, and returns the epochs that
// reach the coverage minimum, newest first.
//
// A scene joins the current epoch when its acquisition time is within
// Tolerance of the anchor, so the anchor bounds the spread of the whole
// epoch.
func (g *Grouper) BuildCoverageSets(scenes []types.SceneRecord, boundary geometry.Geometry) []types.CoverageSet {
	usable := g.filterScenes(scenes)
	if len(usable) == 0 {
		return nil
	}
	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].AcquiredAt.After(usable[j].AcquiredAt)
	})

	var sets []types.CoverageSet
	var current []types.SceneRecord
	anchor := usable[0].AcquiredAt
	for _, s := range usable {
		if absDuration(anchor.Sub(s.AcquiredAt)) <= g.cfg.Tolerance {
			current = append(current, s)
			continue
		}
		if set, ok := g.finishEpoch(anchor, current, boundary); ok {
			sets = append(sets, set)
		}
		anchor = s.AcquiredAt
		current = []types.SceneRecord{s}
	}
	if set, ok := g.finishEpoch(anchor, current, boundary); ok {
		sets = append(sets, set)
	}
	return sets
}

func (g *Grouper) filterScenes(scenes []types.SceneRecord) []types.SceneRecord {
	out := make([]types.SceneRecord, 0, len(scenes))
	for _, s := range scenes {
		switch {
		case s.URI == "":
			g.log.WithField("scene_id", s.ID).Debug("Skipping scene without URI")
		case len(s.Footprint) == 0:
			g.log.WithField("scene_id", s.ID).Debug("Skipping scene without footprint")
		case s.AcquiredAt.IsZero():
			g.log.WithField("scene_id", s.ID).Debug("Skipping scene without acquisition time")
		case s.CloudCover != nil && *s.CloudCover > g.cfg.MaxCloudCover:
			g.log.WithFields(logrus.Fields{
				"scene_id": s.ID, "cloud_cover": *s.CloudCover,
			}).Debug("Skipping cloudy scene")
		default:
			out = append(out, s)
		}
	}
	return out
}

// finishEpoch computes the epoch's combined coverage of the boundary and
// keeps it only when the minimum is met.
func (g *Grouper) finishEpoch(anchor time.Time, scenes []types.SceneRecord, boundary geometry.Geometry) (types.CoverageSet, bool) {
	if len(scenes) == 0 {
		return types.CoverageSet{}, false
	}
	var footprint geometry.Geometry
	set := types.CoverageSet{EpochTime: anchor}
	for _, s := range scenes {
		geom, err := geometry.ResolveBoundary(s.Footprint, g.provider, g.log)
		if err != nil {
			g.log.WithError(err).WithField("scene_id", s.ID).Debug("Skipping scene with unusable footprint")
			continue
		}
		if footprint == nil {
			footprint = geom
		} else if u, err := footprint.Union(geom); err == nil {
			footprint = u
		}
		set.SceneIDs = append(set.SceneIDs, s.ID)
		set.SceneURIs = append(set.SceneURIs, s.URI)
	}
	if footprint == nil {
		return types.CoverageSet{}, false
	}
	cov, err := geometry.CoveragePercent(boundary, footprint)
	if err != nil {
		g.log.WithError(err).Warn("Coverage computation failed for epoch")
		return types.CoverageSet{}, false
	}
	set.CoveragePercent = cov
	if cov < g.cfg.MinCoveragePercent {
		g.log.WithFields(logrus.Fields{
			"epoch":    anchor.Format(time.RFC3339),
			"coverage": cov,
			"scenes":   len(set.SceneIDs),
		}).Debug("Discarding epoch below coverage minimum")
		return types.CoverageSet{}, false
	}
	return set, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
