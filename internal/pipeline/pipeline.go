// Package pipeline orchestrates a full change-detection run: boundary
// resolution, scene selection, mosaicking, alignment, index computation,
// zone extraction, and alert evaluation.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/minewatch/minewatch/internal/change"
	"github.com/minewatch/minewatch/internal/config"
	"github.com/minewatch/minewatch/internal/coverage"
	"github.com/minewatch/minewatch/internal/detection"
	"github.com/minewatch/minewatch/internal/epoch"
	"github.com/minewatch/minewatch/internal/errdefs"
	"github.com/minewatch/minewatch/internal/geometry"
	"github.com/minewatch/minewatch/internal/raster"
	"github.com/minewatch/minewatch/internal/spectral"
	"github.com/minewatch/minewatch/internal/types"
	"github.com/minewatch/minewatch/pkg/bandstore"
	"github.com/minewatch/minewatch/pkg/catalog"
	"github.com/minewatch/minewatch/pkg/render"
)

// Prometheus metrics (registered once).
var (
	runsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minewatch_runs_started_total",
			Help: "Total analysis runs started",
		},
	)
	runsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minewatch_runs_completed_total",
			Help: "Total analysis runs completed successfully",
		},
	)
	runsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minewatch_runs_failed_total",
			Help: "Total analysis runs failed",
		},
		[]string{"stage"},
	)
	zonesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minewatch_zones_detected_total",
			Help: "Total change zones detected",
		},
		[]string{"type"},
	)
	alertsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minewatch_alerts_generated_total",
			Help: "Total alerts generated",
		},
		[]string{"rule", "severity"},
	)
	epochCoverage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minewatch_epoch_coverage_percent",
			Help: "Coverage reached by the most recent run's epochs",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(runsStarted)
	prometheus.MustRegister(runsCompleted)
	prometheus.MustRegister(runsFailed)
	prometheus.MustRegister(zonesDetected)
	prometheus.MustRegister(alertsGenerated)
	prometheus.MustRegister(epochCoverage)
}

// Stage names a pipeline phase, used in error classification and metrics.
type Stage string

const (
	StageValidating        Stage = "validating"
	StageResolvingScenes   Stage = "resolving_scenes"
	StageSelectingCoverage Stage = "selecting_coverage"
	StageMosaicking        Stage = "mosaicking"
	StageAligning          Stage = "aligning"
	StageComputingIndices  Stage = "computing_indices"
	StageDetectingChange   Stage = "detecting_change"
	StageEvaluatingAlerts  Stage = "evaluating_alerts"
)

// Request describes one analysis run. Boundary is any tolerated GeoJSON
// document. BufferKm widens the imagery selection and clipping area around
// it; the boundary breach rule still judges zones against the unwidened
// boundary with its own buffer. BaselineScene and LatestScene anchor the
// comparison; Candidates optionally supplies extra scenes for multi-scene
// composition, otherwise the catalog source is consulted. When IndexDir is
// set the derived index grids are written there as GeoTIFFs.
type Request struct {
	RunID         string              `json:"run_id,omitempty"`
	Boundary      json.RawMessage     `json:"boundary"`
	BufferKm      float64             `json:"buffer_km,omitempty"`
	BaselineScene types.SceneRecord   `json:"baseline_scene"`
	LatestScene   types.SceneRecord   `json:"latest_scene"`
	Candidates    []types.SceneRecord `json:"candidates,omitempty"`
	SaveIndices   bool                `json:"save_indices,omitempty"`
	IndexDir      string              `json:"index_dir,omitempty"`
}

// Deps are the pipeline's collaborators. Catalog and Renderer are optional.
type Deps struct {
	Provider geometry.Provider
	Raster   raster.Engine
	Catalog  catalog.Source
	Bands    bandstore.Store
	Rules    *detection.Store
	Renderer render.Sink
}

// Pipeline runs analyses.
type Pipeline struct {
	cfg       config.AnalysisConfig
	deps      Deps
	log       *logrus.Logger
	grouper   *epoch.Grouper
	resolver  *coverage.Resolver
	mosaicker *raster.Mosaicker
	detector  *change.Detector
}

// New creates a Pipeline after validating the configuration and required
// dependencies.
func New(cfg config.AnalysisConfig, deps Deps, log *logrus.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Provider == nil || deps.Raster == nil || deps.Bands == nil || deps.Rules == nil {
		return nil, errdefs.NewValidation("deps", "provider, raster engine, band store, and rule store are required")
	}
	if deps.Renderer == nil {
		deps.Renderer = render.Discard{}
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  log,
		grouper: epoch.NewGrouper(epoch.Config{
			MaxCloudCover:      cfg.MaxCloudCover,
			Tolerance:          time.Duration(cfg.EpochToleranceMinutes * float64(time.Minute)),
			MinCoveragePercent: cfg.MinEpochCoveragePercent,
		}, deps.Provider, log),
		resolver: coverage.NewResolver(coverage.Config{
			TargetCoveragePercent: cfg.TargetCoverage,
			MaxScenes:             cfg.MaxScenes,
			MaxDateDiff:           time.Duration(cfg.MaxDateDiffDays * 24 * float64(time.Hour)),
			MaxCloudCover:         cfg.MaxCloudCover,
			PreferLowCloud:        cfg.PreferLowCloud,
		}, deps.Provider, log),
		mosaicker: raster.NewMosaicker(deps.Raster, raster.MosaicConfig{
			Method:             raster.MergeMethod(cfg.MergeMethod),
			MinCoveragePercent: cfg.MosaicThreshold,
			ValidatePostMosaic: cfg.ValidatePostMosaic,
		}, log),
		detector: change.NewDetector(deps.Raster, deps.Provider, log),
	}, nil
}

// epochPlan is one side of the comparison: the scenes to mosaic and the
// coverage they reach.
type epochPlan struct {
	label  string
	set    types.CoverageSet
	scenes []types.SceneRecord
}

// Run executes the full analysis. Every failure is returned as one of the
// typed errors in errdefs; anything unclassified is wrapped in an
// AnalysisError carrying the stage and run ID.
func (p *Pipeline) Run(ctx context.Context, req Request) (*types.AnalysisResult, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	log := p.log.WithField("run_id", runID)
	runsStarted.Inc()
	startedAt := time.Now().UTC()
	log.Info("Analysis run started")

	fail := func(stage Stage, err error) (*types.AnalysisResult, error) {
		runsFailed.WithLabelValues(string(stage)).Inc()
		err = classify(stage, runID, err)
		log.WithError(err).WithField("stage", string(stage)).Error("Analysis run failed")
		return nil, err
	}

	// Comparing a scene against itself can never produce change. The check
	// is on URI equality alone, so two unset URIs are rejected too.
	if req.BaselineScene.URI == req.LatestScene.URI {
		return fail(StageValidating, &errdefs.IdenticalScenesError{
			SceneURI:   req.BaselineScene.URI,
			AcquiredAt: req.BaselineScene.AcquiredAt,
		})
	}

	permitted, err := geometry.ResolveBoundary(req.Boundary, p.deps.Provider, p.log)
	if err != nil {
		return fail(StageValidating, err)
	}
	if req.BufferKm < 0 {
		return fail(StageValidating, errdefs.NewValidation("buffer_km", "must not be negative, got %g", req.BufferKm))
	}
	// The breach rule keeps judging against the permitted boundary; only
	// imagery selection and clipping use the widened area.
	boundary := permitted
	if req.BufferKm > 0 {
		buffered, err := permitted.Buffer(req.BufferKm / 111.0)
		if err != nil {
			return fail(StageValidating, err)
		}
		boundary = buffered
	}
	if err := p.checkTemporal(req.BaselineScene.AcquiredAt, req.LatestScene.AcquiredAt); err != nil {
		return fail(StageValidating, err)
	}

	baselinePlan, latestPlan, fastPath, err := p.planEpochs(ctx, req, boundary, log)
	if err != nil {
		return fail(StageResolvingScenes, err)
	}
	if err := p.checkTemporal(baselinePlan.set.EpochTime, latestPlan.set.EpochTime); err != nil {
		return fail(StageSelectingCoverage, err)
	}
	epochCoverage.WithLabelValues("baseline").Set(baselinePlan.set.CoveragePercent)
	epochCoverage.WithLabelValues("latest").Set(latestPlan.set.CoveragePercent)

	resolvedPaths := make(map[string][]string)
	grids := make(map[string]map[string]*raster.Grid, 2)
	for _, plan := range []*epochPlan{baselinePlan, latestPlan} {
		bandGrids, err := p.buildMosaics(ctx, plan, boundary, resolvedPaths)
		if err != nil {
			return fail(StageMosaicking, err)
		}
		grids[plan.label] = bandGrids
	}

	// Alignment order is fixed so the canonical grid does not depend on
	// mosaicking concurrency.
	aligner := raster.NewAligner(p.deps.Raster)
	for _, label := range []string{baselinePlan.label, latestPlan.label} {
		for _, band := range spectral.RequiredBands() {
			aligned, err := aligner.Align(grids[label][band])
			if err != nil {
				return fail(StageAligning, err)
			}
			grids[label][band] = aligned
		}
	}

	baselineIdx, err := p.computeIndices(ctx, runID, baselinePlan.label, grids[baselinePlan.label], req, log)
	if err != nil {
		return fail(StageComputingIndices, err)
	}
	latestIdx, err := p.computeIndices(ctx, runID, latestPlan.label, grids[latestPlan.label], req, log)
	if err != nil {
		return fail(StageComputingIndices, err)
	}

	zones, err := p.detector.DetectZones(baselineIdx, latestIdx)
	if err != nil {
		return fail(StageDetectingChange, err)
	}
	stats := make(map[types.ZoneType]types.ZoneStats)
	for _, z := range zones {
		zonesDetected.WithLabelValues(string(z.Type)).Inc()
		s := stats[z.Type]
		s.Count++
		s.TotalAreaHa += z.AreaHa
		stats[z.Type] = s
	}

	engine := detection.NewEngine(p.deps.Rules.Get(), p.log)
	alerts := engine.EvaluateZones(zones, detection.Context{Boundary: permitted, Provider: p.deps.Provider})
	for _, a := range alerts {
		alertsGenerated.WithLabelValues(a.Type, a.Severity).Inc()
		entry := log.WithFields(logrus.Fields{
			"alert_id": a.ID, "rule": a.Type, "severity": a.Severity, "title": a.Title,
		})
		if a.Severity == types.SeverityHigh {
			entry.Warn("ENVIRONMENTAL ALERT")
		} else {
			entry.Info("Environmental alert")
		}
	}

	result := &types.AnalysisResult{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Zones:      zones,
		Alerts:     alerts,
		Stats:      stats,
		Epochs: types.EpochInfo{
			Baseline: &baselinePlan.set,
			Latest:   &latestPlan.set,
			FastPath: fastPath,
		},
		Metadata: types.ResultMetadata{
			RequiredBands: spectral.RequiredBands(),
			ResolvedPaths: resolvedPaths,
			MergeMethod:   p.cfg.MergeMethod,
		},
	}
	runsCompleted.Inc()
	log.WithFields(logrus.Fields{
		"zones": len(zones), "alerts": len(alerts), "fast_path": fastPath,
		"duration": result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("Analysis run completed")
	return result, nil
}

// checkTemporal enforces ordering and maximum spread between baseline and
// latest acquisition times. Zero times are tolerated.
func (p *Pipeline) checkTemporal(baseline, latest time.Time) error {
	if baseline.IsZero() || latest.IsZero() {
		return nil
	}
	maxDiff := time.Duration(p.cfg.MaxBaselineLatestDiffDays * 24 * float64(time.Hour))
	if !latest.After(baseline) || latest.Sub(baseline) > maxDiff {
		return &errdefs.TemporalInconsistencyError{
			BaselineDate:   baseline,
			LatestDate:     latest,
			MaxAllowedDiff: maxDiff,
		}
	}
	return nil
}

// planEpochs decides which scenes make up each side of the comparison. When
// both anchor scenes individually clear the mosaic threshold the fast
// single-scene path is taken; otherwise candidates are grouped into epochs
// and refined with greedy selection.
func (p *Pipeline) planEpochs(ctx context.Context, req Request, boundary geometry.Geometry, log *logrus.Entry) (*epochPlan, *epochPlan, bool, error) {
	baseCov, baseOK := p.sceneCoverage(req.BaselineScene, boundary)
	lateCov, lateOK := p.sceneCoverage(req.LatestScene, boundary)
	if baseOK && lateOK && baseCov >= p.cfg.MosaicThreshold && lateCov >= p.cfg.MosaicThreshold {
		log.WithFields(logrus.Fields{
			"baseline_coverage": baseCov, "latest_coverage": lateCov,
		}).Info("Both scenes clear the mosaic threshold, skipping composition")
		return singleScenePlan("baseline", req.BaselineScene, baseCov),
			singleScenePlan("latest", req.LatestScene, lateCov),
			true, nil
	}

	candidates, err := p.gatherCandidates(ctx, req)
	if err != nil {
		return nil, nil, false, err
	}
	sets := p.grouper.BuildCoverageSets(candidates, boundary)
	if len(sets) < 2 {
		best := 0.0
		if len(sets) == 1 {
			best = sets[0].CoveragePercent
		}
		return nil, nil, false, &errdefs.InsufficientCoverageError{
			CoveragePercent: best,
			RequiredPercent: p.cfg.MinEpochCoveragePercent,
			SceneCount:      len(candidates),
		}
	}

	latestSet := sets[0]
	baselineSet := pickBaselineSet(sets[1:], req.BaselineScene.AcquiredAt)
	log.WithFields(logrus.Fields{
		"epochs":         len(sets),
		"latest_epoch":   latestSet.EpochTime.Format(time.RFC3339),
		"baseline_epoch": baselineSet.EpochTime.Format(time.RFC3339),
	}).Info("Epochs selected")

	baselinePlan, err := p.refineEpoch(ctx, "baseline", baselineSet, candidates, boundary)
	if err != nil {
		return nil, nil, false, err
	}
	latestPlan, err := p.refineEpoch(ctx, "latest", latestSet, candidates, boundary)
	if err != nil {
		return nil, nil, false, err
	}
	return baselinePlan, latestPlan, false, nil
}

// gatherCandidates merges request candidates, the anchor scenes, and the
// catalog.
func (p *Pipeline) gatherCandidates(ctx context.Context, req Request) ([]types.SceneRecord, error) {
	candidates := append([]types.SceneRecord(nil), req.Candidates...)
	if len(candidates) == 0 && p.deps.Catalog != nil {
		scenes, err := p.deps.Catalog.Scenes(ctx)
		if err != nil {
			return nil, &errdefs.CatalogUnavailableError{Reason: err.Error()}
		}
		candidates = scenes
	}
	for _, anchor := range []types.SceneRecord{req.BaselineScene, req.LatestScene} {
		if anchor.URI == "" || len(anchor.Footprint) == 0 {
			continue
		}
		dup := false
		for _, c := range candidates {
			if c.URI == anchor.URI {
				dup = true
				break
			}
		}
		if !dup {
			candidates = append(candidates, anchor)
		}
	}
	if len(candidates) == 0 {
		return nil, &errdefs.CatalogUnavailableError{Reason: "no candidate scenes and no catalog configured"}
	}
	return candidates, nil
}

// refineEpoch runs greedy selection over the epoch's scenes and enforces the
// final coverage minimum.
func (p *Pipeline) refineEpoch(ctx context.Context, label string, set types.CoverageSet, candidates []types.SceneRecord, boundary geometry.Geometry) (*epochPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	members := make(map[string]bool, len(set.SceneIDs))
	for _, id := range set.SceneIDs {
		members[id] = true
	}
	var pool []types.SceneRecord
	for _, c := range candidates {
		if members[c.ID] {
			pool = append(pool, c)
		}
	}
	sel, err := p.resolver.Select(set.EpochTime, boundary, pool)
	if err != nil {
		return nil, err
	}
	if sel.CoveragePercent < p.cfg.MinCoveragePercent {
		return nil, &errdefs.InsufficientCoverageError{
			CoveragePercent: sel.CoveragePercent,
			RequiredPercent: p.cfg.MinCoveragePercent,
			SceneCount:      len(sel.Scenes),
		}
	}
	set.CoveragePercent = sel.CoveragePercent
	set.SceneIDs = make([]string, 0, len(sel.Scenes))
	set.SceneURIs = make([]string, 0, len(sel.Scenes))
	for _, s := range sel.Scenes {
		set.SceneIDs = append(set.SceneIDs, s.ID)
		set.SceneURIs = append(set.SceneURIs, s.URI)
	}
	return &epochPlan{label: label, set: set, scenes: sel.Scenes}, nil
}

// buildMosaics resolves band files and assembles one clipped grid per band.
func (p *Pipeline) buildMosaics(ctx context.Context, plan *epochPlan, boundary geometry.Geometry, resolvedPaths map[string][]string) (map[string]*raster.Grid, error) {
	bands := spectral.RequiredBands()
	paths := make(map[string][]string, len(bands))
	for _, band := range bands {
		for _, uri := range plan.set.SceneURIs {
			path, err := p.deps.Bands.Resolve(uri, band)
			if err != nil {
				return nil, &errdefs.MosaicError{Band: band, SceneCount: len(plan.set.SceneURIs), Err: err}
			}
			paths[band] = append(paths[band], path)
		}
		resolvedPaths[plan.label+"/"+band] = paths[band]
	}

	out := make(map[string]*raster.Grid, len(bands))
	if !p.cfg.ParallelBands {
		for _, band := range bands {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			g, err := p.mosaicker.BuildBand(band, paths[band], boundary)
			if err != nil {
				return nil, err
			}
			out[band] = g
		}
		return out, nil
	}

	grids := make([]*raster.Grid, len(bands))
	eg, ctx := errgroup.WithContext(ctx)
	for i, band := range bands {
		i, band := i, band
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			g, err := p.mosaicker.BuildBand(band, paths[band], boundary)
			if err != nil {
				return err
			}
			grids[i] = g
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for i, band := range bands {
		out[band] = grids[i]
	}
	return out, nil
}

// computeIndices derives the three index grids for one epoch and optionally
// persists them as GeoTIFFs and ships them to the renderer.
func (p *Pipeline) computeIndices(ctx context.Context, runID, label string, bands map[string]*raster.Grid, req Request, log *logrus.Entry) (change.IndexSet, error) {
	ndvi, err := spectral.NDVI(bands[spectral.BandRed], bands[spectral.BandNIR])
	if err != nil {
		return change.IndexSet{}, err
	}
	ndwi, err := spectral.NDWI(bands[spectral.BandGreen], bands[spectral.BandNIR])
	if err != nil {
		return change.IndexSet{}, err
	}
	bsi, err := spectral.BSI(bands[spectral.BandBlue], bands[spectral.BandRed], bands[spectral.BandNIR], bands[spectral.BandSWIR])
	if err != nil {
		return change.IndexSet{}, err
	}
	set := change.IndexSet{NDVI: ndvi, NDWI: ndwi, BSI: bsi}

	if req.IndexDir != "" {
		for name, g := range map[string]*raster.Grid{"ndvi": ndvi, "ndwi": ndwi, "bsi": bsi} {
			path := filepath.Join(req.IndexDir, fmt.Sprintf("%s_%s_%s.tif", runID, label, name))
			if err := p.deps.Raster.Write(path, g); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"index": name, "path": path,
				}).Warn("Failed to write index raster")
			}
		}
	}

	if req.SaveIndices {
		for name, g := range map[string]*raster.Grid{"ndvi": ndvi, "ndwi": ndwi, "bsi": bsi} {
			artifact := &render.IndexArtifact{
				RunID:     runID,
				Label:     label,
				IndexName: name,
				Width:     g.Width,
				Height:    g.Height,
				Transform: g.Transform,
				SRS:       g.SRS,
				Stats:     render.ComputeStats(g.Data),
				Data:      g.Data,
			}
			if err := p.deps.Renderer.SaveIndex(ctx, artifact); err != nil {
				// Rendering is auxiliary; the analysis result stands on its own.
				log.WithError(err).WithFields(logrus.Fields{
					"index": name, "label": label,
				}).Warn("Failed to save index artifact")
			}
		}
	}
	return set, nil
}

// sceneCoverage computes how much of the boundary one scene's footprint
// covers. ok is false when the footprint is missing or unusable.
func (p *Pipeline) sceneCoverage(s types.SceneRecord, boundary geometry.Geometry) (float64, bool) {
	if s.URI == "" || len(s.Footprint) == 0 {
		return 0, false
	}
	fp, err := geometry.ResolveBoundary(s.Footprint, p.deps.Provider, p.log)
	if err != nil {
		return 0, false
	}
	cov, err := geometry.CoveragePercent(boundary, fp)
	if err != nil {
		return 0, false
	}
	return cov, true
}

func singleScenePlan(label string, s types.SceneRecord, cov float64) *epochPlan {
	return &epochPlan{
		label: label,
		set: types.CoverageSet{
			EpochTime:       s.AcquiredAt,
			SceneIDs:        []string{s.ID},
			SceneURIs:       []string{s.URI},
			CoveragePercent: cov,
		},
		scenes: []types.SceneRecord{s},
	}
}

// pickBaselineSet chooses the epoch nearest the requested baseline date, or
// the oldest epoch when no date was given.
func pickBaselineSet(older []types.CoverageSet, want time.Time) types.CoverageSet {
	if want.IsZero() {
		return older[len(older)-1]
	}
	best := older[0]
	bestDiff := absDuration(best.EpochTime.Sub(want))
	for _, s := range older[1:] {
		if d := absDuration(s.EpochTime.Sub(want)); d < bestDiff {
			best, bestDiff = s, d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// classify maps err onto the shared error taxonomy, wrapping anything
// unrecognized in an AnalysisError.
func classify(stage Stage, runID string, err error) error {
	var (
		validation *errdefs.ValidationError
		insufCov   *errdefs.InsufficientCoverageError
		mosaic     *errdefs.MosaicError
		identical  *errdefs.IdenticalScenesError
		temporal   *errdefs.TemporalInconsistencyError
		catalogErr *errdefs.CatalogUnavailableError
		analysis   *errdefs.AnalysisError
	)
	switch {
	case errors.As(err, &validation),
		errors.As(err, &insufCov),
		errors.As(err, &mosaic),
		errors.As(err, &identical),
		errors.As(err, &temporal),
		errors.As(err, &catalogErr),
		errors.As(err, &analysis):
		return err
	default:
		return &errdefs.AnalysisError{Stage: string(stage), RunID: runID, Err: err}
	}
}
