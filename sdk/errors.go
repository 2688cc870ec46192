package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultErrorMessage is used when nothing more specific describes a failure.
const DefaultErrorMessage = "An error occurred while processing the request."

// Common errors returned by the SDK. Use errors.Is to check the kind of a
// returned *Error.
//
// Example:
//
//	_, err := sdk.Send[Basket](ctx, client, sc, desc, sdk.Enveloped[Basket](), nil)
//	switch {
//	case errors.Is(err, sdk.ErrDomain):
//	    // The server rejected the request with structured errors
//	case errors.Is(err, sdk.ErrProtocol):
//	    // Non-success status without a structured body
//	case errors.Is(err, sdk.ErrTransport):
//	    // The server could not be reached
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTransport matches errors of kind TransportFailure
	ErrTransport = errors.New("transport failure")

	// ErrProtocol matches errors of kind ProtocolFailure
	ErrProtocol = errors.New("protocol failure")

	// ErrDomain matches errors of kind DomainFailure
	ErrDomain = errors.New("domain failure")
)

// FailureKind classifies an *Error.
type FailureKind int

const (
	// TransportFailure means no response was obtained: connection, DNS,
	// timeout or a request that could not be created
	TransportFailure FailureKind = iota + 1
	// ProtocolFailure means a bad response without structured errors, or a
	// good response whose body could not be decoded
	ProtocolFailure
	// DomainFailure means a response carrying structured errors, or
	// escalated structured infos
	DomainFailure
)

// String returns the kind name
func (k FailureKind) String() string {
	switch k {
	case TransportFailure:
		return "transport"
	case ProtocolFailure:
		return "protocol"
	case DomainFailure:
		return "domain"
	default:
		return "unknown"
	}
}

// DiagnosisSource records which rule produced a Diagnosis.
type DiagnosisSource int

const (
	SourceDefault DiagnosisSource = iota
	SourcePredefined
	SourceStructured
	SourceStatus
	SourceTransport
)

// DiagnoseOptions tunes Diagnose.
type DiagnoseOptions struct {
	// Message, when non-blank, wins over everything else
	Message string
	// InfoCodes switches the structured source from errors to infos. Only
	// infos whose code is listed are considered.
	InfoCodes []string
}

// Diagnosis is the message and discrete error list describing a failure.
type Diagnosis struct {
	Message string
	// Errors is nil when no discrete entry could be derived
	Errors []string
	Source DiagnosisSource
}

// Diagnose derives the failure description from a response and its
// structured context. The first rule yielding content wins:
//
//  1. a predefined message
//  2. structured entries, joined with "; "
//  3. the response status description
//  4. the transport error message
//  5. DefaultErrorMessage
//
// The returned message is never empty.
func Diagnose(resp *Response, rc *ResponseContext, opts DiagnoseOptions) Diagnosis {
	entries := structuredEntries(rc, opts.InfoCodes)

	if msg := strings.TrimSpace(opts.Message); msg != "" {
		return Diagnosis{Message: msg, Errors: entries, Source: SourcePredefined}
	}

	if len(entries) > 0 {
		return Diagnosis{Message: strings.Join(entries, "; "), Errors: entries, Source: SourceStructured}
	}

	if resp != nil {
		if status := strings.TrimSpace(resp.Status); status != "" {
			return Diagnosis{Message: status, Errors: []string{status}, Source: SourceStatus}
		}
		if msg := strings.TrimSpace(resp.ErrorMessage); msg != "" {
			return Diagnosis{Message: msg, Errors: []string{msg}, Source: SourceTransport}
		}
	}

	return Diagnosis{Message: DefaultErrorMessage, Source: SourceDefault}
}

// structuredEntries renders the visible entries of the selected source.
// A nil allow-list selects errors; a non-nil one selects matching infos.
func structuredEntries(rc *ResponseContext, infoCodes []string) []string {
	if rc == nil {
		return nil
	}

	var entries []string
	if infoCodes == nil {
		for _, e := range rc.Errors {
			if s := e.String(); s != "" {
				entries = append(entries, s)
			}
		}
		return entries
	}

	allowed := make(map[string]struct{}, len(infoCodes))
	for _, c := range infoCodes {
		allowed[codeString(Code(c))] = struct{}{}
	}
	for _, info := range rc.Info {
		if _, ok := allowed[codeString(info.Code)]; !ok {
			continue
		}
		if s := info.String(); s != "" {
			entries = append(entries, s)
		}
	}
	return entries
}

// Error is the single failure type returned by Client calls. Kind tells
// which of the three failure families it belongs to; the other fields carry
// the diagnostic snapshot.
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    for _, e := range sdkErr.Errors {
//	        fmt.Println(e)
//	    }
//	    log.Debug(sdkErr.DebugInfo())
//	}
type Error struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	// Errors is the discrete list behind Message, nil if none
	Errors     []string `json:"errors,omitempty"`
	StatusCode int      `json:"status_code,omitempty"`
	Status     string   `json:"status,omitempty"`
	// Context is the raw structured context of the response, if any
	Context *ResponseContext `json:"context,omitempty"`
	// Details is built from the request echo of the envelope, for diagnostics only
	Details map[string]interface{} `json:"details,omitempty"`
	// Request is a copy of the wire request without credentials
	Request  *WireRequest `json:"-"`
	Response *Response    `json:"-"`
	// CorrelationID is the id returned by the server, else the one sent
	CorrelationID string    `json:"correlation_id,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	wrapped       error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error: ")
	b.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Kind == TransportFailure && e.wrapped != nil && e.wrapped.Error() != e.Message {
		b.WriteString(": ")
		b.WriteString(e.wrapped.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case TransportFailure:
		return target == ErrTransport
	case ProtocolFailure:
		return target == ErrProtocol
	case DomainFailure:
		return target == ErrDomain
	}
	return false
}

// IsRetryable reports whether sending the same request again may succeed.
// Transport failures, 5xx, 408 and 429 are retryable; domain failures never are.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case TransportFailure:
		return true
	case ProtocolFailure:
		return e.StatusCode >= 500 ||
			e.StatusCode == http.StatusTooManyRequests ||
			e.StatusCode == http.StatusRequestTimeout
	default:
		return false
	}
}

// DebugInfo renders the full diagnostic snapshot as multi-line text.
func (e *Error) DebugInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kind: %s\n", e.Kind)
	fmt.Fprintf(&b, "message: %s\n", e.Message)
	if !e.Timestamp.IsZero() {
		fmt.Fprintf(&b, "timestamp: %s\n", e.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	if e.CorrelationID != "" {
		fmt.Fprintf(&b, "correlation_id: %s\n", e.CorrelationID)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, "attempts: %d\n", e.Attempts)
	}
	if e.Request != nil {
		fmt.Fprintf(&b, "request: %s %s\n", e.Request.Method, e.Request.URL())
		keys := make([]string, 0, len(e.Request.Headers))
		for k := range e.Request.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, redactHeader(k, e.Request.Headers[k]))
		}
		if len(e.Request.Body) > 0 {
			fmt.Fprintf(&b, "  body: %s\n", e.Request.Body)
		}
	}
	if e.StatusCode != 0 || e.Status != "" {
		fmt.Fprintf(&b, "response: %d %s\n", e.StatusCode, e.Status)
	}
	for _, msg := range e.Errors {
		fmt.Fprintf(&b, "error: %s\n", msg)
	}
	if len(e.Details) > 0 {
		if data, err := json.Marshal(e.Details); err == nil {
			fmt.Fprintf(&b, "details: %s\n", data)
		}
	}
	if e.wrapped != nil {
		fmt.Fprintf(&b, "cause: %v\n", e.wrapped)
	}
	return strings.TrimRight(b.String(), "\n")
}

func redactHeader(name, value string) string {
	switch strings.ToLower(name) {
	case "authorization", "proxy-authorization", "cookie":
		return "[REDACTED]"
	}
	return value
}

// NewTransportError wraps a failure that prevented any response.
func NewTransportError(cause error, req *WireRequest, c *Context) *Error {
	msg := DefaultErrorMessage
	if cause != nil && strings.TrimSpace(cause.Error()) != "" {
		msg = cause.Error()
	}
	return &Error{
		Kind:          TransportFailure,
		Message:       msg,
		Errors:        []string{msg},
		Request:       req.snapshot(),
		CorrelationID: correlationOf(c),
		Timestamp:     time.Now(),
		wrapped:       cause,
	}
}

// ResponseFailure gathers what NewResponseError needs to describe a
// response-shaped failure.
type ResponseFailure struct {
	Response *Response
	// Context is the structured context decoded from the body, if any
	Context *ResponseContext
	// Echo is the request echo decoded from the body, if any
	Echo    *RequestSnapshot
	Request *WireRequest
	Session *Context
	Options DiagnoseOptions
	// Cause is optional, typically a decode failure
	Cause error
}

// NewResponseError converts a response-shaped failure into an *Error using
// Diagnose. The kind is DomainFailure when the selected structured source has
// visible entries, ProtocolFailure otherwise.
func NewResponseError(f ResponseFailure) *Error {
	d := Diagnose(f.Response, f.Context, f.Options)

	kind := ProtocolFailure
	if len(structuredEntries(f.Context, f.Options.InfoCodes)) > 0 {
		kind = DomainFailure
	}

	e := &Error{
		Kind:          kind,
		Message:       d.Message,
		Errors:        d.Errors,
		Context:       f.Context,
		Details:       f.Echo.details(),
		Request:       f.Request.snapshot(),
		Response:      f.Response,
		CorrelationID: correlationOf(f.Session),
		Timestamp:     time.Now(),
		wrapped:       f.Cause,
	}
	if f.Response != nil {
		e.StatusCode = f.Response.StatusCode
		e.Status = f.Response.Status
		e.Attempts = f.Response.Attempts
	}
	return e
}

func correlationOf(c *Context) string {
	if c == nil {
		return ""
	}
	if c.ReceivedCorrelationID != "" {
		return c.ReceivedCorrelationID
	}
	return c.CorrelationID
}

// IsRetryable checks whether err is an *Error that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.IsRetryable()
	}
	return false
}

// ErrorsOf returns the discrete error list of an *Error, or nil
func ErrorsOf(err error) []string {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Errors
	}
	return nil
}
