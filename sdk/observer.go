package sdk

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/boxoffice/internal/telemetry"
)

// Observer provides hooks for monitoring SDK operations.
// Observer methods should be fast and non-blocking; they run on the calling
// goroutine.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithObserver(sdk.NewMultiObserver(
//	        sdk.NewLogObserver(logger),
//	        sdk.NewPrometheusObserver(prometheus.DefaultRegisterer),
//	    ))
type Observer interface {
	// OnRequestStart is called before the first attempt of a call
	OnRequestStart(method, path string)

	// OnRequestEnd is called once the call has a result or an error.
	// err is nil for successful calls.
	OnRequestEnd(method, path string, duration time.Duration, err error)

	// OnRetryAttempt is called before each retry. attempt counts retries
	// from 1; err describes why the previous attempt was not accepted.
	OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error)

	// OnTokenCacheHit is called when an auth token is served from cache
	OnTokenCacheHit(key string)

	// OnTokenCacheMiss is called when an auth token has to be obtained
	OnTokenCacheMiss(key string)
}

// NoopObserver does nothing. It is the default observer.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, path string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {}

// OnRetryAttempt does nothing
func (n *NoopObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
}

// OnTokenCacheHit does nothing
func (n *NoopObserver) OnTokenCacheHit(key string) {}

// OnTokenCacheMiss does nothing
func (n *NoopObserver) OnTokenCacheMiss(key string) {}

// LogObserver writes request lifecycle events to a logrus logger.
// Starts, retries and cache events are logged at debug level; failed calls
// at warn.
type LogObserver struct {
	log logrus.FieldLogger
}

// NewLogObserver creates a LogObserver. A nil logger uses the process-wide
// telemetry logger.
func NewLogObserver(log logrus.FieldLogger) *LogObserver {
	if log == nil {
		log = telemetry.L()
	}
	return &LogObserver{log: log.WithField("component", "boxoffice-sdk")}
}

// OnRequestStart logs the request
func (o *LogObserver) OnRequestStart(method, path string) {
	o.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
	}).Debug("request started")
}

// OnRequestEnd logs the outcome
func (o *LogObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {
	entry := o.log.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("request failed")
		return
	}
	entry.Debug("request completed")
}

// OnRetryAttempt logs the retry
func (o *LogObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	entry := o.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("retrying request")
}

// OnTokenCacheHit logs the hit. Keys are hashes, never credentials.
func (o *LogObserver) OnTokenCacheHit(key string) {
	o.log.WithField("key", key).Debug("token cache hit")
}

// OnTokenCacheMiss logs the miss
func (o *LogObserver) OnTokenCacheMiss(key string) {
	o.log.WithField("key", key).Debug("token cache miss")
}

// MultiObserver fans every event out to its children in order.
// A panicking child is recovered so it cannot break the others or the call.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver combines observers; nil entries are skipped
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, o := range observers {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
	return m
}

func (m *MultiObserver) each(fn func(Observer)) {
	for _, obs := range m.observers {
		func() {
			defer func() {
				_ = recover()
			}()
			fn(obs)
		}()
	}
}

// OnRequestStart notifies all observers
func (m *MultiObserver) OnRequestStart(method, path string) {
	m.each(func(o Observer) { o.OnRequestStart(method, path) })
}

// OnRequestEnd notifies all observers
func (m *MultiObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {
	m.each(func(o Observer) { o.OnRequestEnd(method, path, duration, err) })
}

// OnRetryAttempt notifies all observers
func (m *MultiObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	m.each(func(o Observer) { o.OnRetryAttempt(method, path, attempt, delay, err) })
}

// OnTokenCacheHit notifies all observers
func (m *MultiObserver) OnTokenCacheHit(key string) {
	m.each(func(o Observer) { o.OnTokenCacheHit(key) })
}

// OnTokenCacheMiss notifies all observers
func (m *MultiObserver) OnTokenCacheMiss(key string) {
	m.each(func(o Observer) { o.OnTokenCacheMiss(key) })
}
