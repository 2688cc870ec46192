// Package testutil holds fixtures shared by the SDK tests: a scripted HTTP
// backend and, behind the integration build tag, container helpers.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Reply is one canned answer of a Backend.
type Reply struct {
	Status  int
	Headers map[string]string
	Body    string
}

// Recorded is a request seen by a Backend.
type Recorded struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

// Backend is an httptest server answering with a script of replies. Once
// the script is exhausted the last reply repeats.
type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	replies  []Reply
	requests []Recorded
}

// NewBackend starts a backend closed automatically at the end of the test.
func NewBackend(t testing.TB, replies ...Reply) *Backend {
	t.Helper()
	b := &Backend{replies: replies}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)
	return b
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.requests = append(b.requests, Recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	reply := Reply{Status: http.StatusOK}
	if n := len(b.requests); len(b.replies) > 0 {
		idx := n - 1
		if idx >= len(b.replies) {
			idx = len(b.replies) - 1
		}
		reply = b.replies[idx]
	}
	b.mu.Unlock()

	for k, v := range reply.Headers {
		w.Header().Set(k, v)
	}
	if reply.Body != "" && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply.Body)
}

// Calls returns the number of requests served
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Requests returns a copy of the recorded requests
func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Recorded(nil), b.requests...)
}

// Last returns the most recent request
func (b *Backend) Last() Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return Recorded{}
	}
	return b.requests[len(b.requests)-1]
}

// Envelope renders a wrapped response body. errs and infos may be nil.
func Envelope(t testing.TB, payload interface{}, errs, infos []map[string]interface{}) string {
	t.Helper()
	env := map[string]interface{}{
		"response": payload,
	}
	if errs != nil || infos != nil {
		ctx := map[string]interface{}{}
		if errs != nil {
			ctx["errors"] = errs
		}
		if infos != nil {
			ctx["info"] = infos
		}
		env["context"] = ctx
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("failed to render envelope: %v", err)
	}
	return string(data)
}
