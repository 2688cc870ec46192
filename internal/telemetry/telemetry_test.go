package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testConfig() *Config {
	return &Config{
		ServiceName:    "boxoffice-test",
		ServiceVersion: "1.2.3",
		Environment:    "test",
		LogLevel:       "debug",
		SamplingRate:   1,
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := NewConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "boxoffice-sdk", cfg.ServiceName)
		assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
		assert.Equal(t, 1.0, cfg.SamplingRate)
		assert.True(t, cfg.EnableTracing)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("OTEL_SERVICE_NAME", "box-checkout")
		t.Setenv("LOG_LEVEL", "warn")
		t.Setenv("ENABLE_TRACING", "false")

		cfg, err := NewConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "box-checkout", cfg.ServiceName)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.False(t, cfg.EnableTracing)
	})

	t.Run("invalid sampling rate", func(t *testing.T) {
		t.Setenv("OTEL_SAMPLING_RATE", "1.5")
		_, err := NewConfigFromEnv()
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(testConfig(), &buf)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("environment", "override").Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "boxoffice-test", line["service.name"])
	assert.Equal(t, "1.2.3", line["service.version"])
	assert.Equal(t, "override", line["environment"])
	assert.Contains(t, line, "@timestamp")

	cfg := testConfig()
	cfg.LogLevel = "chatty"
	assert.Equal(t, logrus.InfoLevel, NewLogger(cfg, &buf).GetLevel())
}

func TestGlobalLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	assert.Same(t, logrus.StandardLogger(), L())

	var buf bytes.Buffer
	custom := NewLogger(testConfig(), &buf)
	SetLogger(custom)
	assert.Same(t, custom, L())

	WithError(errors.New("boom")).Error("failed")
	assert.Contains(t, buf.String(), `"error":"boom"`)

	buf.Reset()
	WithFields(logrus.Fields{"basket": "B1"}).Warn("slow")
	assert.Contains(t, buf.String(), `"basket":"B1"`)
}

func TestWithContext(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	var buf bytes.Buffer
	SetLogger(NewLogger(testConfig(), &buf))

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	entry := WithContext(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry.Data["trace.id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry.Data["span.id"])

	plain := WithContext(context.Background())
	assert.NotContains(t, plain.Data, "trace.id")
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableTracing = false

	tp, shutdown, err := NewTracerProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, failed := tp.Tracer("test").Start(context.Background(), "failed")
	RecordError(ctx, errors.New("upstream unavailable"))
	failed.End()

	ctx, ok := tp.Tracer("test").Start(context.Background(), "ok")
	RecordError(ctx, nil)
	ok.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "upstream unavailable", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)

	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Empty(t, spans[1].Events())
}

func TestInit_TracingDisabled(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	cfg := testConfig()
	cfg.EnableTracing = false

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotSame(t, logrus.StandardLogger(), L())
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "boxoffice_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "boxoffice_test_total 3")
	assert.NotNil(t, MetricsHandler(nil))
}
