package sdk

import (
	"net/http"
	"strconv"
	"strings"
)

// Response is the transport outcome of a single attempt.
//
// A Response exists whenever the server answered, even with an error status
// or a body that could not be read completely. Failures before any answer
// (DNS, refused connections, timeouts) are returned as errors instead.
type Response struct {
	// Completed reports whether the body was received in full
	Completed bool
	// StatusCode is the HTTP status code
	StatusCode int
	// Status is the status description without the numeric code, e.g. "Not Found"
	Status string
	Header http.Header
	Body   []byte
	// ErrorMessage is the transport-level error text, if any
	ErrorMessage string
	// Attempts is the number of attempts the executor made to obtain this response
	Attempts int
}

// IsGood reports whether the transport completed and the status is in the
// 2xx or 3xx family.
func (r *Response) IsGood() bool {
	if r == nil || !r.Completed || strings.TrimSpace(r.ErrorMessage) != "" {
		return false
	}
	return r.StatusCode >= 200 && r.StatusCode < 400
}

// IsBad is the negation of IsGood
func (r *Response) IsBad() bool {
	return !r.IsGood()
}

// statusDescription strips the leading status code from an http.Response
// status line.
func statusDescription(resp *http.Response) string {
	status := strings.TrimSpace(resp.Status)
	status = strings.TrimPrefix(status, strconv.Itoa(resp.StatusCode))
	return strings.TrimSpace(status)
}
