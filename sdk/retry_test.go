package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver captures events for assertions.
type recordingObserver struct {
	mu      sync.Mutex
	starts  int
	ends    []error
	retries []int
	delays  []time.Duration
	hits    int
	misses  int
}

func (r *recordingObserver) OnRequestStart(method, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
}

func (r *recordingObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, err)
}

func (r *recordingObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, attempt)
	r.delays = append(r.delays, delay)
}

func (r *recordingObserver) OnTokenCacheHit(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *recordingObserver) OnTokenCacheMiss(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func statusDoer(calls *int, statuses ...int) DoerFunc {
	return func(req *http.Request) (*http.Response, error) {
		status := statuses[len(statuses)-1]
		if *calls < len(statuses) {
			status = statuses[*calls]
		}
		*calls++
		return &http.Response{
			StatusCode: status,
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(`{}`)),
		}, nil
	}
}

func testWire(t *testing.T) *WireRequest {
	t.Helper()
	w, err := BuildRequest(nil, "http://boxoffice.test", RequestDescriptor{Method: "GET", Path: "/v1/ping"}, nil)
	require.NoError(t, err)
	return w
}

func TestExecutor_TransportErrors(t *testing.T) {
	for _, k := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("%d attempts", k), func(t *testing.T) {
			calls := 0
			doer := DoerFunc(func(req *http.Request) (*http.Response, error) {
				calls++
				return nil, fmt.Errorf("dial failure %d", calls)
			})

			resp, err := NewExecutor(k, NoBackoff{}, nil).Execute(context.Background(), doer, testWire(t), 0)
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.Equal(t, k, calls)
			assert.Equal(t, fmt.Sprintf("dial failure %d", k), err.Error(), "last error is returned")
		})
	}
}

func TestExecutor_BadResponses(t *testing.T) {
	t.Run("always 500 returns last response as data", func(t *testing.T) {
		calls := 0
		obs := &recordingObserver{}
		exec := NewExecutor(3, NoBackoff{}, obs)

		resp, err := exec.Execute(context.Background(), statusDoer(&calls, 500), testWire(t), 0)
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Equal(t, "Internal Server Error", resp.Status)
		assert.Equal(t, 3, resp.Attempts)
		assert.True(t, resp.IsBad())
		assert.Equal(t, []int{1, 2}, obs.retries)
	})

	t.Run("first good response wins", func(t *testing.T) {
		calls := 0
		resp, err := NewExecutor(5, NoBackoff{}, nil).Execute(context.Background(), statusDoer(&calls, 503, 404, 200), testWire(t), 0)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 200, resp.StatusCode)
		assert.True(t, resp.IsGood())
	})

	t.Run("good response sends once", func(t *testing.T) {
		calls := 0
		resp, err := NewExecutor(3, NoBackoff{}, nil).Execute(context.Background(), statusDoer(&calls, 204), testWire(t), 0)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, resp.Attempts)
	})

	t.Run("redirect status counts as good", func(t *testing.T) {
		calls := 0
		resp, err := NewExecutor(3, NoBackoff{}, nil).Execute(context.Background(), statusDoer(&calls, 304), testWire(t), 0)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.True(t, resp.IsGood())
	})

	t.Run("per call override", func(t *testing.T) {
		calls := 0
		_, err := NewExecutor(5, NoBackoff{}, nil).Execute(context.Background(), statusDoer(&calls, 502), testWire(t), 2)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("error after bad response returns error", func(t *testing.T) {
		calls := 0
		doer := DoerFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return statusDoer(new(int), 500)(req)
			}
			return nil, errors.New("connection reset")
		})
		resp, err := NewExecutor(2, NoBackoff{}, nil).Execute(context.Background(), doer, testWire(t), 0)
		assert.Nil(t, resp)
		assert.EqualError(t, err, "connection reset")
	})
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("stream broken") }
func (failingBody) Close() error { return nil }

func TestExecutor_IncompleteBody(t *testing.T) {
	calls := 0
	doer := DoerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: 200, Status: "200 OK", Header: http.Header{}, Body: failingBody{}}, nil
	})

	resp, err := NewExecutor(2, NoBackoff{}, nil).Execute(context.Background(), doer, testWire(t), 0)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Completed)
	assert.Equal(t, "stream broken", resp.ErrorMessage)
	assert.True(t, resp.IsBad())
	assert.Equal(t, 2, calls)
}

func TestExecutor_ResendsBody(t *testing.T) {
	var bodies []string
	doer := DoerFunc(func(req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(data))
		return nil, errors.New("timeout")
	})

	w, err := BuildRequest(nil, "http://boxoffice.test", RequestDescriptor{Method: "POST", Path: "/v1/items", Body: map[string]int{"qty": 1}}, nil)
	require.NoError(t, err)

	_, _ = NewExecutor(3, NoBackoff{}, nil).Execute(context.Background(), doer, w, 0)
	assert.Equal(t, []string{`{"qty":1}`, `{"qty":1}`, `{"qty":1}`}, bodies)
}

func TestExecutor_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	doer := DoerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		cancel()
		return nil, errors.New("refused")
	})

	start := time.Now()
	_, err := NewExecutor(3, ConstantBackoff{Interval: time.Minute}, nil).Execute(ctx, doer, testWire(t), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecutor_ObserverDelays(t *testing.T) {
	obs := &recordingObserver{}
	calls := 0
	backoff := BackoffFunc(func(attempt int) time.Duration { return time.Duration(attempt) * time.Millisecond })

	_, err := NewExecutor(3, backoff, obs).Execute(context.Background(), statusDoer(&calls, 500), testWire(t), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, obs.delays)
}

func TestNewExecutor_Defaults(t *testing.T) {
	exec := NewExecutor(0, nil, nil)
	assert.Equal(t, DefaultMaxAttempts, exec.MaxAttempts)
	assert.IsType(t, NoBackoff{}, exec.Backoff)
	assert.NotNil(t, exec.Observer)
}

func TestExponentialBackoff(t *testing.T) {
	t.Run("without jitter", func(t *testing.T) {
		b := &ExponentialBackoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
			Multiplier:      2,
		}
		tests := []struct {
			attempt int
			want    time.Duration
		}{
			{0, 0},
			{1, 100 * time.Millisecond},
			{2, 200 * time.Millisecond},
			{3, 400 * time.Millisecond},
			{4, 500 * time.Millisecond},
			{10, 500 * time.Millisecond},
		}
		for _, tt := range tests {
			assert.Equal(t, tt.want, b.NextInterval(tt.attempt), "attempt %d", tt.attempt)
		}
	})

	t.Run("jitter stays in range", func(t *testing.T) {
		b := DefaultExponentialBackoff()
		for i := 0; i < 100; i++ {
			d := b.NextInterval(1)
			assert.GreaterOrEqual(t, d, 80*time.Millisecond)
			assert.LessOrEqual(t, d, 120*time.Millisecond)
		}
	})
}

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff{Interval: 250 * time.Millisecond}
	assert.Equal(t, time.Duration(0), b.NextInterval(0))
	assert.Equal(t, 250*time.Millisecond, b.NextInterval(1))
	assert.Equal(t, 250*time.Millisecond, b.NextInterval(7))
	assert.Equal(t, time.Duration(0), NoBackoff{}.NextInterval(3))
}
