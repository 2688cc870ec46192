package telemetry

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the configuration for telemetry
type Config struct {
	// OTLPEndpoint is the gRPC collector address
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	OTLPInsecure   bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	ServiceName    string `envconfig:"OTEL_SERVICE_NAME" default:"boxoffice-sdk"`
	Environment    string `envconfig:"ENVIRONMENT" default:"development"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"unknown"`

	SamplingRate float64 `envconfig:"OTEL_SAMPLING_RATE" default:"1.0"`
	LogLevel     string  `envconfig:"LOG_LEVEL" default:"info"`

	EnableTracing bool `envconfig:"ENABLE_TRACING" default:"true"`
}

// NewConfigFromEnv creates a new config from environment variables.
// Keys are read without prefix, matching the OpenTelemetry conventions.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		return nil, fmt.Errorf("invalid telemetry config: OTEL_SAMPLING_RATE must be within [0, 1], got %v", cfg.SamplingRate)
	}
	return &cfg, nil
}
