package sdk

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickingObserver struct {
	NoopObserver
}

func (panickingObserver) OnRequestStart(method, path string) {
	panic("observer bug")
}

func TestMultiObserver(t *testing.T) {
	first := &recordingObserver{}
	second := &recordingObserver{}
	multi := NewMultiObserver(first, nil, &panickingObserver{}, second)

	assert.NotPanics(t, func() {
		multi.OnRequestStart("GET", "/v1/venues")
	})
	multi.OnRequestEnd("GET", "/v1/venues", time.Millisecond, nil)
	multi.OnRetryAttempt("GET", "/v1/venues", 1, 0, errors.New("500"))
	multi.OnTokenCacheHit("k")
	multi.OnTokenCacheMiss("k")

	for _, obs := range []*recordingObserver{first, second} {
		assert.Equal(t, 1, obs.starts)
		assert.Len(t, obs.ends, 1)
		assert.Equal(t, []int{1}, obs.retries)
		assert.Equal(t, 1, obs.hits)
		assert.Equal(t, 1, obs.misses)
	}
}

func TestLogObserver(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	obs := NewLogObserver(logger)

	obs.OnRequestStart("GET", "/v1/venues")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "request started", entry.Message)
	assert.Equal(t, "boxoffice-sdk", entry.Data["component"])
	assert.Equal(t, "/v1/venues", entry.Data["path"])

	obs.OnRequestEnd("GET", "/v1/venues", 25*time.Millisecond, errors.New("boom"))
	entry = hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "request failed", entry.Message)
	assert.Equal(t, int64(25), entry.Data["duration_ms"])
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "boom")

	obs.OnRetryAttempt("GET", "/v1/venues", 2, 200*time.Millisecond, nil)
	entry = hook.LastEntry()
	assert.Equal(t, "retrying request", entry.Message)
	assert.Equal(t, 2, entry.Data["attempt"])

	obs.OnTokenCacheHit("abc")
	assert.Equal(t, "token cache hit", hook.LastEntry().Message)
	obs.OnTokenCacheMiss("abc")
	assert.Equal(t, "token cache miss", hook.LastEntry().Message)

	assert.Len(t, hook.AllEntries(), 5)
}

func TestLogObserver_DefaultLogger(t *testing.T) {
	obs := NewLogObserver(nil)
	assert.NotNil(t, obs.log)
	assert.NotPanics(t, func() { obs.OnRequestStart("GET", "/") })
}
