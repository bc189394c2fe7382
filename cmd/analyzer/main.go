package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minewatch/minewatch/internal/config"
	"github.com/minewatch/minewatch/internal/detection"
	"github.com/minewatch/minewatch/internal/geometry"
	"github.com/minewatch/minewatch/internal/pipeline"
	"github.com/minewatch/minewatch/internal/raster"
	"github.com/minewatch/minewatch/internal/server"
	"github.com/minewatch/minewatch/internal/version"
	"github.com/minewatch/minewatch/pkg/bandstore"
	"github.com/minewatch/minewatch/pkg/catalog"
	"github.com/minewatch/minewatch/pkg/render"
)

func main() {
	requestPath := flag.String("request", "", "run one analysis from a JSON request file and print the result")
	catalogPath := flag.String("catalog", "", "JSON file of candidate scenes")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)

	log.WithFields(logrus.Fields{
		"version": version.Version,
	}).Info("Starting MineWatch Analyzer")

	geometry.RegisterDrivers()
	provider := geometry.NewGDALProvider()
	engine := raster.NewGDALEngine(provider)

	analysisCfg := config.DefaultAnalysisConfig()
	analyzerCfg := config.DefaultAnalyzerConfig()

	rules, err := detection.NewStore(analyzerCfg.RulesPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load alert rules")
	}

	var renderer render.Sink = render.Discard{}
	if analyzerCfg.RendererEndpoint != "" {
		renderer = render.NewClient(render.Config{
			Endpoint: analyzerCfg.RendererEndpoint,
			APIKey:   analyzerCfg.RendererAPIKey,
			Timeout:  analyzerCfg.RendererTimeout,
		}, log)
	}

	var source catalog.Source
	if *catalogPath != "" {
		source = catalog.NewFile(*catalogPath)
	}

	pl, err := pipeline.New(analysisCfg, pipeline.Deps{
		Provider: provider,
		Raster:   engine,
		Catalog:  source,
		Bands:    bandstore.NewDirStore(analyzerCfg.ImageryDir),
		Rules:    rules,
		Renderer: renderer,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *requestPath != "" {
		runOnce(ctx, cancel, sigChan, pl, analyzerCfg, *requestPath, log)
		return
	}

	if analyzerCfg.RulesPath != "" {
		go func() {
			if err := rules.Watch(ctx); err != nil {
				log.WithError(err).Error("Rule watcher stopped")
			}
		}()
	}

	srv := server.New(analyzerCfg, pl, rules, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server error")
			cancel()
		}
	}()

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}

	log.Info("Analyzer shutdown complete")
}

// runOnce executes a single analysis from a request file and writes the
// result to stdout.
func runOnce(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal, pl *pipeline.Pipeline, cfg config.AnalyzerConfig, path string, log *logrus.Logger) {
	go func() {
		sig := <-sigChan
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
		cancel()
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Fatal("Failed to read request file")
	}
	var req pipeline.Request
	if err := json.Unmarshal(data, &req); err != nil {
		log.WithError(err).Fatal("Failed to parse request file")
	}
	if cfg.SaveIndices {
		req.SaveIndices = true
	}

	result, err := pl.Run(ctx, req)
	if err != nil {
		log.WithError(err).Fatal("Analysis failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.WithError(err).Fatal("Failed to encode result")
	}
}
