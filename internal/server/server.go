// Package server provides the HTTP API for the analyzer: health, metrics,
// on-demand analysis runs, and alert rule management.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/config"
	"github.com/minewatch/minewatch/internal/detection"
	"github.com/minewatch/minewatch/internal/errdefs"
	"github.com/minewatch/minewatch/internal/pipeline"
	"github.com/minewatch/minewatch/internal/version"
)

// Server is the HTTP server for the analyzer API.
type Server struct {
	cfg        config.AnalyzerConfig
	pipeline   *pipeline.Pipeline
	rules      *detection.Store
	log        *logrus.Logger
	httpServer *http.Server
}

// New creates a new HTTP server around the given pipeline and rule store.
func New(cfg config.AnalyzerConfig, pl *pipeline.Pipeline, rules *detection.Store, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{cfg: cfg, pipeline: pl, rules: rules, log: log}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/v1/rules", s.handleRules)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Analysis runs mosaic and warp full scenes, so writes are slow.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe starts the HTTP server. It blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.HTTPAddr).Info("Analyzer listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version.Version,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}
	result, err := s.pipeline.Run(r.Context(), req)
	if err != nil {
		status, kind := classifyError(err)
		writeError(w, status, kind, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.rules.Get())
	case http.MethodPut, http.MethodPost:
		var cfg detection.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
			return
		}
		if err := s.rules.Set(cfg); err != nil {
			s.log.WithError(err).Error("Failed to store rule config")
			writeError(w, http.StatusInternalServerError, "internal", "Failed to store rules")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": msg})
}

// classifyError maps the analysis error taxonomy onto HTTP statuses.
func classifyError(err error) (int, string) {
	var (
		validation *errdefs.ValidationError
		identical  *errdefs.IdenticalScenesError
		temporal   *errdefs.TemporalInconsistencyError
		insufCov   *errdefs.InsufficientCoverageError
		catalogErr *errdefs.CatalogUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_error"
	case errors.As(err, &identical):
		return http.StatusConflict, "identical_scenes"
	case errors.As(err, &temporal):
		return http.StatusUnprocessableEntity, "temporal_inconsistency"
	case errors.As(err, &insufCov):
		return http.StatusUnprocessableEntity, "insufficient_coverage"
	case errors.As(err, &catalogErr):
		return http.StatusServiceUnavailable, "catalog_unavailable"
	default:
		return http.StatusInternalServerError, "analysis_error"
	}
}
