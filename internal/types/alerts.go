package types

import (
	"encoding/json"
	"time"
)

// Severity levels for alerts, highest first.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Alert is a generated environmental alert from the rule engine.
type Alert struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Severity    string          `json:"severity"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
