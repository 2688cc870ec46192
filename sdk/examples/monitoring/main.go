// Monitoring Example
// This example wires the SDK into logrus, Prometheus and OpenTelemetry,
// shares JWTs through Redis, and serves the metrics on :9090/metrics.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/birbparty/boxoffice/internal/telemetry"
	"github.com/birbparty/boxoffice/sdk"
	"github.com/birbparty/boxoffice/sdk/token"
)

type Availability struct {
	PerformanceID string `json:"performanceId"`
	Seats         int    `json:"seats"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryCfg, err := telemetry.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load telemetry config: %v", err)
	}
	shutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	logger := telemetry.L()
	reg := prometheus.NewRegistry()
	observer := sdk.NewMultiObserver(
		sdk.NewLogObserver(logger),
		sdk.NewPrometheusObserver(reg),
	)

	config, err := sdk.LoadConfigFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load SDK config")
	}
	config.WithObserver(observer).WithTracerProvider(otel.GetTracerProvider())

	loginClient, err := sdk.NewClient(config)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create client")
	}

	opts := []token.Option{token.WithObserver(observer), token.WithLogger(logger)}
	if redisCfg, err := token.NewRedisConfigFromEnv(); err == nil {
		store, err := token.NewRedisStore(ctx, redisCfg)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, tokens are cached in process only")
		} else {
			defer store.Close()
			opts = append(opts, token.WithStore(store))
		}
	}
	config.WithTokenSource(token.NewProvider(loginClient, opts...))

	client, err := sdk.NewClient(config)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create client")
	}

	server := &http.Server{Addr: ":9090", Handler: telemetry.MetricsHandler(reg)}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()
	defer server.Close()

	fmt.Println("Metrics available at http://localhost:9090/metrics")

	sc := sdk.NewContext(sdk.Sandbox, sdk.Credentials{
		Method:   sdk.AuthJWT,
		Username: os.Getenv("BOXOFFICE_USERNAME"),
		Password: os.Getenv("BOXOFFICE_PASSWORD"),
	})

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		res, err := sdk.Send(ctx, client, sc, sdk.RequestDescriptor{
			Service:  sdk.ServiceInventory,
			Path:     "/v1/performances/{0}/availability",
			PathArgs: []string{"P-77"},
		}, sdk.Enveloped[Availability](), nil)
		if err != nil {
			telemetry.WithContext(ctx).WithError(err).Warn("Availability check failed")
		} else {
			logger.WithField("seats", res.Data.Seats).Info("Availability checked")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
