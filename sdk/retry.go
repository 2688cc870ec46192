package sdk

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// DefaultMaxAttempts is the attempt bound used when none is configured.
const DefaultMaxAttempts = 3

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to the Doer interface
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req)
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Backoff returns the pause before the next attempt.
// The attempt parameter starts at 1 for the first retry.
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// BackoffFunc adapts a function to the Backoff interface
type BackoffFunc func(attempt int) time.Duration

// NextInterval calls f(attempt)
func (f BackoffFunc) NextInterval(attempt int) time.Duration {
	return f(attempt)
}

// ExponentialBackoff grows the pause by Multiplier per retry, capped at
// MaxInterval, randomized by ±Jitter.
//
//	base  = InitialInterval * Multiplier^(attempt-1)
//	pause = min(base, MaxInterval) ± Jitter*base
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
}

// DefaultExponentialBackoff returns 100ms initial, 2s cap, x2, ±20% jitter
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

// NextInterval calculates the pause before the given retry
func (b *ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.MaxInterval > 0 && interval > float64(b.MaxInterval) {
		interval = float64(b.MaxInterval)
	}

	if b.Jitter > 0 {
		jitterRange := interval * b.Jitter
		interval += jitterRange * (2*rand.Float64() - 1)
	}

	if interval < 0 {
		interval = 0
	}
	return time.Duration(interval)
}

// ConstantBackoff pauses for the same Interval before every retry
type ConstantBackoff struct {
	Interval time.Duration
}

// NextInterval returns Interval for any retry
func (b ConstantBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return b.Interval
}

// NoBackoff retries immediately
type NoBackoff struct{}

// NextInterval always returns 0
func (NoBackoff) NextInterval(int) time.Duration {
	return 0
}

// Executor sends a WireRequest under a bounded-attempts policy.
//
// Errors returned by the Doer are retried and, once attempts are exhausted,
// the last one is returned. Bad responses are retried too, but the last bad
// response is returned as data with a nil error: callers turn it into an
// *Error themselves. This keeps response-shaped failures on the normal
// result path.
type Executor struct {
	MaxAttempts int
	Backoff     Backoff
	Observer    Observer
}

// NewExecutor creates an executor. maxAttempts below 1 falls back to
// DefaultMaxAttempts; a nil backoff retries immediately.
func NewExecutor(maxAttempts int, backoff Backoff, observer Observer) *Executor {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoff == nil {
		backoff = NoBackoff{}
	}
	if observer == nil {
		observer = &NoopObserver{}
	}
	return &Executor{MaxAttempts: maxAttempts, Backoff: backoff, Observer: observer}
}

// attempts resolves the bound for a call; values below 1 use the executor's.
func (e *Executor) attempts(override int) int {
	if override >= 1 {
		return override
	}
	if e.MaxAttempts >= 1 {
		return e.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Execute sends req up to maxAttempts times (executor default when
// maxAttempts < 1) and returns the first good response, the last bad
// response, or the last transport error.
func (e *Executor) Execute(ctx context.Context, doer Doer, req *WireRequest, maxAttempts int) (*Response, error) {
	limit := e.attempts(maxAttempts)
	observer := e.Observer
	if observer == nil {
		observer = &NoopObserver{}
	}

	var lastResp *Response
	var lastErr error

	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			reason := lastErr
			if reason == nil {
				reason = badResponseError(lastResp)
			}
			delay := time.Duration(0)
			if e.Backoff != nil {
				delay = e.Backoff.NextInterval(attempt - 1)
			}
			observer.OnRetryAttempt(req.Method, req.Path, attempt-1, delay, reason)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		httpReq, err := req.HTTPRequest(ctx)
		if err != nil {
			// Building the request fails the same way on every attempt.
			return nil, err
		}

		resp, err := e.send(doer, httpReq)
		if err != nil {
			lastErr, lastResp = err, nil
			continue
		}
		resp.Attempts = attempt
		if resp.IsGood() {
			return resp, nil
		}
		lastErr, lastResp = nil, resp
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}

// send performs one attempt. Body read failures produce an incomplete
// Response rather than an error since the server did answer.
func (e *Executor) send(doer Doer, req *http.Request) (*Response, error) {
	httpResp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     statusDescription(httpResp),
		Header:     httpResp.Header,
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		resp.Body = body
		resp.ErrorMessage = err.Error()
		return resp, nil
	}
	resp.Body = body
	resp.Completed = true
	return resp, nil
}

func badResponseError(resp *Response) error {
	if resp == nil {
		return fmt.Errorf("no response")
	}
	if resp.ErrorMessage != "" {
		return fmt.Errorf("incomplete response (status %d): %s", resp.StatusCode, resp.ErrorMessage)
	}
	return fmt.Errorf("bad response: status %d", resp.StatusCode)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
