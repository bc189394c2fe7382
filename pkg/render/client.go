// Package render ships computed index rasters to the MineWatch rendering
// service, which tiles them for the map UI.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Stats summarizes an index raster, ignoring non-finite pixels.
type Stats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// IndexArtifact is one computed index raster with enough georeferencing for
// the renderer to place it.
type IndexArtifact struct {
	RunID     string     `json:"run_id"`
	Label     string     `json:"label"`
	IndexName string     `json:"index_name"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Transform [6]float64 `json:"transform"`
	SRS       string     `json:"srs"`
	Stats     Stats      `json:"stats"`
	Data      []float64  `json:"data"`
}

// Sink receives index artifacts.
type Sink interface {
	SaveIndex(ctx context.Context, artifact *IndexArtifact) error
}

// Discard is a Sink that drops artifacts.
type Discard struct{}

// SaveIndex drops the artifact.
func (Discard) SaveIndex(ctx context.Context, artifact *IndexArtifact) error { return nil }

// Config for the rendering service client.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client handles communication with the rendering service.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewClient creates a rendering service client.
func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// SaveIndex posts the artifact to the rendering service.
func (c *Client) SaveIndex(ctx context.Context, artifact *IndexArtifact) error {
	if c.endpoint == "" {
		return fmt.Errorf("render client not configured")
	}
	url := fmt.Sprintf("%s/api/v1/indices", c.endpoint)
	return c.sendJSON(ctx, url, artifact)
}

// HealthCheck checks if the rendering service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.endpoint == "" {
		return fmt.Errorf("render client not configured")
	}
	url := fmt.Sprintf("%s/health", c.endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, url string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	c.log.WithFields(logrus.Fields{
		"url":    url,
		"status": resp.StatusCode,
	}).Debug("Successfully sent to rendering service")
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	req.Header.Set("User-Agent", "minewatch-analyzer/0.1.0")
}

// ComputeStats summarizes data, skipping NaN and infinite values.
func ComputeStats(data []float64) Stats {
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	var n int
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		n++
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	if n == 0 {
		return Stats{}
	}
	s.Mean = sum / float64(n)
	var sq float64
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		d := v - s.Mean
		sq += d * d
	}
	s.Std = math.Sqrt(sq / float64(n))
	return s
}
