// Package telemetry wires the process-wide logger and tracer used by the SDK.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Init initializes the logger and tracing and returns the shutdown function.
func Init(ctx context.Context, cfg *Config) (func(context.Context) error, error) {
	InitLogger(cfg)

	shutdown, err := InitTracing(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	L().WithFields(map[string]interface{}{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
		"tracing":     cfg.EnableTracing,
	}).Info("Telemetry initialized")

	return func(ctx context.Context) error {
		if err := shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			L().WithError(err).Error("Failed to close tracing")
			return err
		}
		return nil
	}, nil
}

// MetricsHandler returns an HTTP handler exposing the metrics of reg. A nil
// reg serves the default gatherer.
func MetricsHandler(reg prometheus.Gatherer) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
