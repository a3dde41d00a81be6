// Package app wires the generation core from a loaded config. Both binaries
// share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"identity-forge/internal/batch"
	"identity-forge/internal/catalog"
	"identity-forge/internal/config"
	"identity-forge/internal/gemini"
	"identity-forge/internal/httpclient"
	"identity-forge/internal/metrics"
	"identity-forge/internal/session"
)

type App struct {
	HTTPClient *http.Client
	Batch      *batch.Client
	Sessions   *session.Store
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4:   cfg.PreferIPv4,
		Timeout:      cfg.HTTPTimeout,
		ConnsPerHost: 2 * len(catalog.Styles()),
	})

	gen, err := newGenerator(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(cfg.MetricsNamespace, registry)

	bc, err := batch.New(batch.Options{
		Generator:   gen,
		Observer:    collector,
		Logger:      logger,
		MaxParallel: cfg.BatchMaxParallel,
		Interval:    cfg.BatchInterval,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		HTTPClient: httpClient,
		Batch:      bc,
		Sessions:   session.NewStore(session.Options{TTL: cfg.SessionTTL}),
		Metrics:    collector,
		Registry:   registry,
	}, nil
}

func newGenerator(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (batch.Generator, error) {
	switch cfg.GeminiBackend {
	case config.BackendSDK:
		gen, err := gemini.NewSDK(ctx, gemini.SDKOptions{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			Model:      cfg.GeminiImageModel,
			HTTPClient: httpClient,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini sdk: %w", err)
		}
		return gen, nil
	case config.BackendREST:
		return gemini.New(gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			Model:      cfg.GeminiImageModel,
			HTTPClient: httpClient,
			Logger:     logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown gemini backend %q", cfg.GeminiBackend)
	}
}
