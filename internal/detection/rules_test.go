package detection

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/geometry/geomtest"
	"github.com/minewatch/minewatch/internal/types"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func zoneAt(t *testing.T, zt types.ZoneType, areaHa, minX, minY, maxX, maxY float64) types.Zone {
	t.Helper()
	raw, err := geomtest.NewRegion(geomtest.Rect{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}).MarshalGeoJSON()
	if err != nil {
		t.Fatal(err)
	}
	return types.Zone{Type: zt, AreaHa: areaHa, Geometry: raw}
}

// insideCtx is a wide boundary so only the scoring rules fire.
func insideCtx() Context {
	return Context{
		Boundary: geomtest.NewRegion(geomtest.Rect{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10}),
		Provider: geomtest.Provider{},
	}
}

func vegZone(t *testing.T, areaHa float64) types.Zone {
	return zoneAt(t, types.ZoneVegetationLoss, areaHa, 0, 0, 0.01, 0.01)
}

func TestEngine_SeverityBucketing(t *testing.T) {
	e := NewEngine(Config{}, testLogger())
	cases := []struct {
		areaHa float64
		want   string
	}{
		{1.2, types.SeverityHigh},
		{0.7, types.SeverityMedium},
		{0.3, types.SeverityLow},
	}
	for _, tc := range cases {
		alerts := e.EvaluateZones([]types.Zone{vegZone(t, tc.areaHa)}, insideCtx())
		if len(alerts) != 1 {
			t.Fatalf("area %.1f: got %d alerts, want 1", tc.areaHa, len(alerts))
		}
		if alerts[0].Severity != tc.want {
			t.Errorf("area %.1f: severity = %q, want %q", tc.areaHa, alerts[0].Severity, tc.want)
		}
	}
}

func TestEngine_BelowMinimumAreaNoAlert(t *testing.T) {
	e := NewEngine(Config{}, testLogger())
	alerts := e.EvaluateZones([]types.Zone{vegZone(t, 0.1)}, insideCtx())
	if len(alerts) != 0 {
		t.Errorf("got %d alerts for a 0.1 ha vegetation zone, want 0", len(alerts))
	}
}

func TestEngine_BoundaryThresholdInclusive(t *testing.T) {
	e := NewEngine(Config{}, testLogger())
	alerts := e.EvaluateZones([]types.Zone{vegZone(t, 1.0)}, insideCtx())
	if len(alerts) != 1 || alerts[0].Severity != types.SeverityHigh {
		t.Errorf("area exactly at the high threshold should be high, got %+v", alerts)
	}
}

func TestEngine_WaterDefaultsToLow(t *testing.T) {
	e := NewEngine(Config{}, testLogger())
	z := zoneAt(t, types.ZoneWaterAccumulation, 0.06, 0, 0, 0.01, 0.01)
	alerts := e.EvaluateZones([]types.Zone{z}, insideCtx())
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Severity != types.SeverityLow {
		t.Errorf("water severity = %q, want low", alerts[0].Severity)
	}
}

func TestEngine_DescriptionTemplate(t *testing.T) {
	e := NewEngine(Config{}, testLogger())
	alerts := e.EvaluateZones([]types.Zone{vegZone(t, 1.234)}, insideCtx())
	if len(alerts) != 1 {
		t.Fatal("expected one alert")
	}
	if !strings.Contains(alerts[0].Description, "1.2 ha") {
		t.Errorf("description = %q, want area formatted to one decimal", alerts[0].Description)
	}
	if alerts[0].Location != "Site Assessment Zone" {
		t.Errorf("location = %q", alerts[0].Location)
	}
}

func TestEngine_DisabledRule(t *testing.T) {
	cfg := DefaultConfig()
	rc := cfg.Rules[RuleVegetationLoss]
	rc.Enabled = false
	cfg.Rules[RuleVegetationLoss] = rc

	e := NewEngine(cfg, testLogger())
	alerts := e.EvaluateZones([]types.Zone{vegZone(t, 2.0)}, insideCtx())
	if len(alerts) != 0 {
		t.Errorf("disabled rule still produced %d alerts", len(alerts))
	}
}

func TestEngine_BoundaryBreach(t *testing.T) {
	e := NewEngine(Config{}, testLogger())
	// Boundary is a small square at the origin; the zone sits about 1 degree
	// away, far beyond the 2 km buffer.
	ctx := Context{
		Boundary: geomtest.NewRegion(geomtest.Rect{MinX: 0, MinY: 0, MaxX: 0.1, MaxY: 0.1}),
		Provider: geomtest.Provider{},
	}
	outside := zoneAt(t, types.ZoneMiningExpansion, 0.5, 1.0, 1.0, 1.05, 1.05)
	alerts := e.EvaluateZones([]types.Zone{outside}, ctx)

	var breach, scoring int
	for _, a := range alerts {
		switch a.Type {
		case string(RuleBoundaryBreach):
			breach++
			if a.Severity != types.SeverityHigh {
				t.Errorf("breach severity = %q, want high", a.Severity)
			}
		case string(RuleMiningExpansion):
			scoring++
		}
	}
	if breach != 1 {
		t.Errorf("breach alerts = %d, want 1", breach)
	}
	if scoring != 1 {
		t.Errorf("scoring alerts = %d, want 1", scoring)
	}
}

func TestEngine_NoBreachInsideBuffer(t *testing.T) {
	e := NewEngine(Config{}, testLogger())
	ctx := Context{
		Boundary: geomtest.NewRegion(geomtest.Rect{MinX: 0, MinY: 0, MaxX: 0.1, MaxY: 0.1}),
		Provider: geomtest.Provider{},
	}
	// Just outside the boundary but inside the ~0.018 degree buffer.
	near := zoneAt(t, types.ZoneWaterAccumulation, 0.06, 0.1, 0.0, 0.105, 0.01)
	alerts := e.EvaluateZones([]types.Zone{near}, ctx)
	for _, a := range alerts {
		if a.Type == string(RuleBoundaryBreach) {
			t.Error("zone inside the buffer should not breach")
		}
	}
}

func TestNewEngine_MergesWithDefaultsAndDropsUnknown(t *testing.T) {
	cfg := Config{
		Version: "7",
		Rules: map[RuleKind]RuleConfig{
			RuleVegetationLoss: {
				Enabled:    true,
				MinAreaHa:  5,
				Thresholds: map[string]float64{types.SeverityHigh: 5},
			},
			RuleKind("volcano_watch"): {Enabled: true},
		},
	}
	e := NewEngine(cfg, testLogger())
	got := e.Rules()
	if got.Version != "7" {
		t.Errorf("version = %q", got.Version)
	}
	if got.Rules[RuleVegetationLoss].MinAreaHa != 5 {
		t.Error("override not applied")
	}
	if !got.Rules[RuleMiningExpansion].Enabled {
		t.Error("default mining rule should survive the merge")
	}
	if _, ok := got.Rules[RuleKind("volcano_watch")]; ok {
		t.Error("unknown rule kind should be dropped")
	}
	// Tightened rule: a 2 ha zone no longer alerts.
	if alerts := e.EvaluateZones([]types.Zone{vegZone(t, 2)}, insideCtx()); len(alerts) != 0 {
		t.Errorf("tightened rule produced %d alerts", len(alerts))
	}
}
