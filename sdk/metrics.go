package sdk

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver exports SDK events as Prometheus metrics:
//
//	boxoffice_sdk_requests_total{method,path,outcome}
//	boxoffice_sdk_request_duration_seconds{method,path}
//	boxoffice_sdk_retries_total{method,path}
//	boxoffice_sdk_token_cache_total{result}
//
// path is the descriptor path pattern, not the resolved path, to keep label
// cardinality bounded.
type PrometheusObserver struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	tokenCache *prometheus.CounterVec
}

// NewPrometheusObserver registers the SDK metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusObserver{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boxoffice_sdk_requests_total",
				Help: "Total number of SDK calls by outcome",
			},
			[]string{"method", "path", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "boxoffice_sdk_request_duration_seconds",
				Help:    "SDK call duration in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boxoffice_sdk_retries_total",
				Help: "Total number of retried attempts",
			},
			[]string{"method", "path"},
		),
		tokenCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boxoffice_sdk_token_cache_total",
				Help: "Token cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// OnRequestStart does nothing; requests are counted on completion
func (p *PrometheusObserver) OnRequestStart(method, path string) {}

// OnRequestEnd records the call outcome and duration
func (p *PrometheusObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {
	p.requests.WithLabelValues(method, path, outcomeLabel(err)).Inc()
	p.duration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// OnRetryAttempt counts the retry
func (p *PrometheusObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	p.retries.WithLabelValues(method, path).Inc()
}

// OnTokenCacheHit counts a hit
func (p *PrometheusObserver) OnTokenCacheHit(key string) {
	p.tokenCache.WithLabelValues("hit").Inc()
}

// OnTokenCacheMiss counts a miss
func (p *PrometheusObserver) OnTokenCacheMiss(key string) {
	p.tokenCache.WithLabelValues("miss").Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		if sdkErr.StatusCode != 0 {
			return sdkErr.Kind.String() + "_" + strconv.Itoa(sdkErr.StatusCode/100) + "xx"
		}
		return sdkErr.Kind.String()
	}
	return "error"
}
