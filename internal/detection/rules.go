// Package detection provides the alert rules engine that turns detected
// change zones into operator-facing alerts, plus a hot-reloadable rule
// configuration store.
package detection

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/geometry"
	"github.com/minewatch/minewatch/internal/types"
)

// RuleKind identifies one of the built-in rules. The set is closed: unknown
// kinds in a config file are ignored rather than interpreted.
type RuleKind string

const (
	RuleVegetationLoss    RuleKind = "vegetation_loss"
	RuleMiningExpansion   RuleKind = "mining_expansion"
	RuleWaterAccumulation RuleKind = "water_accumulation"
	RuleBoundaryBreach    RuleKind = "boundary_breach"
)

// RuleConfig holds the tunable parameters of one rule. Thresholds maps a
// severity to the minimum zone area in hectares that earns it.
type RuleConfig struct {
	Enabled   bool    `json:"enabled"`
	MinAreaHa float64 `json:"min_area_ha"`
	// Thresholds are checked high, then medium, then low; absent levels are
	// skipped.
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
	// Titles are per-severity alert titles.
	Titles map[string]string `json:"titles,omitempty"`
	// DescriptionTemplate may contain {area}, replaced with the zone area.
	DescriptionTemplate string `json:"description_template,omitempty"`
	Location            string `json:"location,omitempty"`
	// DefaultSeverity applies when no threshold matches (and always for the
	// boundary breach rule).
	DefaultSeverity string `json:"default_severity,omitempty"`
	// BufferKm is the tolerance band around the boundary for the breach rule.
	BufferKm float64 `json:"buffer_km,omitempty"`
}

// Config is the full rule configuration document.
type Config struct {
	Version string                  `json:"version,omitempty"`
	Rules   map[RuleKind]RuleConfig `json:"rules"`
}

// DefaultConfig returns the built-in rule set.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Rules: map[RuleKind]RuleConfig{
			RuleVegetationLoss: {
				Enabled:   true,
				MinAreaHa: 0.2,
				Thresholds: map[string]float64{
					types.SeverityHigh:   1.0,
					types.SeverityMedium: 0.5,
					types.SeverityLow:    0.2,
				},
				Titles: map[string]string{
					types.SeverityHigh:   "Critical vegetation loss detected",
					types.SeverityMedium: "Significant vegetation loss detected",
					types.SeverityLow:    "Vegetation loss detected",
				},
				DescriptionTemplate: "Vegetation cover lost across {area} ha since the baseline acquisition",
				Location:            "Site Assessment Zone",
			},
			RuleMiningExpansion: {
				Enabled:   true,
				MinAreaHa: 0.05,
				Thresholds: map[string]float64{
					types.SeverityMedium: 0.1,
					types.SeverityLow:    0.05,
				},
				Titles: map[string]string{
					types.SeverityMedium: "Excavation footprint expanding",
					types.SeverityLow:    "New excavation activity detected",
				},
				DescriptionTemplate: "Exposed soil has expanded by {area} ha beyond the baseline footprint",
				Location:            "Active Operations Zone",
			},
			RuleWaterAccumulation: {
				Enabled:   true,
				MinAreaHa: 0.05,
				Thresholds: map[string]float64{
					types.SeverityLow: 0.05,
				},
				Titles: map[string]string{
					types.SeverityLow: "Water accumulation detected",
				},
				DescriptionTemplate: "Standing water detected across {area} ha, check drainage and containment",
				Location:            "Drainage Area",
				DefaultSeverity:     types.SeverityLow,
			},
			RuleBoundaryBreach: {
				Enabled:             true,
				BufferKm:            2.0,
				DescriptionTemplate: "Detected activity of {area} ha extends outside the permitted boundary",
				Location:            "Boundary Perimeter",
				DefaultSeverity:     types.SeverityHigh,
				Titles: map[string]string{
					types.SeverityHigh: "Activity beyond permitted boundary",
				},
			},
		},
	}
}

// zoneRuleKind maps a zone type to the rule that scores it.
func zoneRuleKind(zt types.ZoneType) (RuleKind, bool) {
	switch zt {
	case types.ZoneVegetationLoss:
		return RuleVegetationLoss, true
	case types.ZoneMiningExpansion:
		return RuleMiningExpansion, true
	case types.ZoneWaterAccumulation:
		return RuleWaterAccumulation, true
	default:
		return "", false
	}
}

// Context carries per-run inputs the rules need beyond the zones themselves.
type Context struct {
	// Boundary is the permitted area in lon/lat.
	Boundary geometry.Geometry
	// Provider parses zone geometries for the breach check.
	Provider geometry.Provider
}

// Engine evaluates zones against the configured rules and produces alerts.
type Engine struct {
	cfg Config
	log *logrus.Logger
}

// NewEngine creates an engine from cfg, falling back to defaults for rules
// the config omits.
func NewEngine(cfg Config, log *logrus.Logger) *Engine {
	merged := DefaultConfig()
	if cfg.Version != "" {
		merged.Version = cfg.Version
	}
	for kind, rc := range cfg.Rules {
		switch kind {
		case RuleVegetationLoss, RuleMiningExpansion, RuleWaterAccumulation, RuleBoundaryBreach:
			merged.Rules[kind] = rc
		default:
			log.WithField("rule", string(kind)).Warn("Ignoring unknown rule kind in config")
		}
	}
	return &Engine{cfg: merged, log: log}
}

// Rules returns the effective rule configuration.
func (e *Engine) Rules() Config { return e.cfg }

// EvaluateZones runs every zone through its scoring rule and through the
// boundary breach rule, returning all generated alerts.
func (e *Engine) EvaluateZones(zones []types.Zone, ctx Context) []types.Alert {
	var alerts []types.Alert
	for _, zone := range zones {
		alerts = append(alerts, e.Evaluate(zone, ctx)...)
	}
	return alerts
}

// Evaluate runs one zone through its scoring rule and the boundary breach
// rule.
func (e *Engine) Evaluate(zone types.Zone, ctx Context) []types.Alert {
	var alerts []types.Alert
	if a, ok := e.evaluateZone(zone); ok {
		alerts = append(alerts, a)
	}
	if a, ok := e.evaluateBreach(zone, ctx); ok {
		alerts = append(alerts, a)
	}
	return alerts
}

// evaluateZone scores one zone with its type's rule.
func (e *Engine) evaluateZone(zone types.Zone) (types.Alert, bool) {
	kind, ok := zoneRuleKind(zone.Type)
	if !ok {
		return types.Alert{}, false
	}
	rc, ok := e.cfg.Rules[kind]
	if !ok || !rc.Enabled {
		return types.Alert{}, false
	}
	if zone.AreaHa < rc.MinAreaHa {
		return types.Alert{}, false
	}
	severity := severityFor(zone.AreaHa, rc)
	if severity == "" {
		return types.Alert{}, false
	}
	return e.buildAlert(kind, rc, zone, severity), true
}

// evaluateBreach checks whether the zone extends beyond the buffered
// boundary.
func (e *Engine) evaluateBreach(zone types.Zone, ctx Context) (types.Alert, bool) {
	rc, ok := e.cfg.Rules[RuleBoundaryBreach]
	if !ok || !rc.Enabled {
		return types.Alert{}, false
	}
	if ctx.Boundary == nil || ctx.Provider == nil || len(zone.Geometry) == 0 {
		return types.Alert{}, false
	}
	zoneGeom, err := ctx.Provider.FromGeoJSON(zone.Geometry)
	if err != nil {
		e.log.WithError(err).Debug("Skipping breach check for unparseable zone geometry")
		return types.Alert{}, false
	}
	// Rough km-to-degrees conversion; the buffer is a tolerance band, not a
	// survey line.
	buffered, err := ctx.Boundary.Buffer(rc.BufferKm / 111.0)
	if err != nil {
		e.log.WithError(err).Warn("Boundary buffer failed, skipping breach check")
		return types.Alert{}, false
	}
	if buffered.Contains(zoneGeom) {
		return types.Alert{}, false
	}
	severity := rc.DefaultSeverity
	if severity == "" {
		severity = types.SeverityHigh
	}
	return e.buildAlert(RuleBoundaryBreach, rc, zone, severity), true
}

func (e *Engine) buildAlert(kind RuleKind, rc RuleConfig, zone types.Zone, severity string) types.Alert {
	title := rc.Titles[severity]
	if title == "" {
		title = fmt.Sprintf("%s alert", strings.ReplaceAll(string(kind), "_", " "))
	}
	desc := strings.ReplaceAll(rc.DescriptionTemplate, "{area}", fmt.Sprintf("%.1f", zone.AreaHa))
	alert := types.Alert{
		ID:          uuid.New().String(),
		Type:        string(kind),
		Title:       title,
		Description: desc,
		Location:    rc.Location,
		Severity:    severity,
		Geometry:    zone.Geometry,
		CreatedAt:   time.Now().UTC(),
	}
	e.log.WithFields(logrus.Fields{
		"alert_id": alert.ID, "rule": string(kind), "severity": severity, "area_ha": zone.AreaHa,
	}).Info("Alert generated")
	return alert
}

// severityFor buckets area into the highest matching severity.
func severityFor(areaHa float64, rc RuleConfig) string {
	for _, sev := range []string{types.SeverityHigh, types.SeverityMedium, types.SeverityLow} {
		if th, ok := rc.Thresholds[sev]; ok && areaHa >= th {
			return sev
		}
	}
	return rc.DefaultSeverity
}
