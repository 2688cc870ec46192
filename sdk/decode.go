package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Code is a structured error or info code. Servers send it either as a JSON
// string or as a number; both decode to the same textual form.
type Code string

// UnmarshalJSON accepts strings, numbers and null
func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code must be a string or number: %w", err)
	}
	*c = Code(n.String())
	return nil
}

// StructuredError is a server-declared validation or business error.
type StructuredError struct {
	Code    Code   `json:"code,omitempty" xml:"code,omitempty"`
	Field   string `json:"field,omitempty" xml:"field,omitempty"`
	Message string `json:"message,omitempty" xml:"message,omitempty"`
}

// String renders the entry as "{field} - {message}", else message, else
// code, else the bare field. An entry with none of them renders empty.
func (e StructuredError) String() string {
	field := strings.TrimSpace(e.Field)
	message := strings.TrimSpace(e.Message)
	switch {
	case field != "" && message != "":
		return field + " - " + message
	case message != "":
		return message
	case strings.TrimSpace(string(e.Code)) != "":
		return strings.TrimSpace(string(e.Code))
	default:
		return field
	}
}

// StructuredInfo is an informational or warning entry.
type StructuredInfo struct {
	Code    Code   `json:"code,omitempty" xml:"code,omitempty"`
	Name    string `json:"name,omitempty" xml:"name,omitempty"`
	Type    string `json:"type,omitempty" xml:"type,omitempty"`
	Message string `json:"message,omitempty" xml:"message,omitempty"`
}

// String renders the entry as message, else name, else code
func (i StructuredInfo) String() string {
	if m := strings.TrimSpace(i.Message); m != "" {
		return m
	}
	if n := strings.TrimSpace(i.Name); n != "" {
		return n
	}
	return strings.TrimSpace(string(i.Code))
}

// ResponseContext is the structured context of an enveloped response.
type ResponseContext struct {
	Errors []StructuredError `json:"errors,omitempty" xml:"errors>error,omitempty"`
	Info   []StructuredInfo  `json:"info,omitempty" xml:"info>item,omitempty"`
}

// HasErrors reports whether at least one error entry renders non-empty
func (rc *ResponseContext) HasErrors() bool {
	if rc == nil {
		return false
	}
	for _, e := range rc.Errors {
		if e.String() != "" {
			return true
		}
	}
	return false
}

// RequestSnapshot is the request echo a server may include in the envelope.
// It is kept for diagnostics only.
type RequestSnapshot struct {
	Body      json.RawMessage        `json:"body,omitempty" xml:"-"`
	Query     map[string]interface{} `json:"query,omitempty" xml:"-"`
	URLParams map[string]interface{} `json:"urlParams,omitempty" xml:"-"`
}

// Envelope is the wrapped form of a response body:
//
//	{"request": {...}, "response": <payload>, "context": {"errors": [...], "info": [...]}}
type Envelope[T any] struct {
	Request  *RequestSnapshot `json:"request,omitempty" xml:"request,omitempty"`
	Response T                `json:"response" xml:"response"`
	Context  *ResponseContext `json:"context,omitempty" xml:"context,omitempty"`
}

// Decoded is the output of a Decoder.
type Decoded[T any] struct {
	Data    T
	Request *RequestSnapshot
	Context *ResponseContext
}

// Decoder turns a Response into typed data. The client picks the serializer
// resolved for the request.
//
// A Decoder returns an error only when a good response cannot be decoded.
// Malformed bodies on bad responses produce zero data instead, so the error
// normalizer can still describe the failure from the status.
type Decoder[T any] func(resp *Response, s Serializer) (Decoded[T], error)

// Enveloped decodes bodies wrapped in an Envelope and extracts the payload.
func Enveloped[T any]() Decoder[T] {
	return func(resp *Response, s Serializer) (Decoded[T], error) {
		var out Decoded[T]
		if resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
			return out, nil
		}

		var env Envelope[T]
		if err := s.Unmarshal(resp.Body, &env); err != nil {
			if resp.IsGood() {
				return out, fmt.Errorf("failed to decode envelope: %w", err)
			}
			return out, nil
		}

		out.Data = env.Response
		out.Request = env.Request
		out.Context = env.Context
		return out, nil
	}
}

// Raw decodes the whole body as T on good responses and skips decoding on
// bad ones.
func Raw[T any]() Decoder[T] {
	return func(resp *Response, s Serializer) (Decoded[T], error) {
		var out Decoded[T]
		if !resp.IsGood() || len(bytes.TrimSpace(resp.Body)) == 0 {
			return out, nil
		}
		if err := s.Unmarshal(resp.Body, &out.Data); err != nil {
			return out, fmt.Errorf("failed to decode response body: %w", err)
		}
		return out, nil
	}
}

// Identifiable is implemented by items decoded into a ResultList.
type Identifiable interface {
	ID() string
}

// Result is the typed outcome of a call.
type Result[T any] struct {
	Context  *Context
	Response *Response
	Data     T
	// ResponseContext is set for enveloped responses that carried one
	ResponseContext *ResponseContext
}

// Success derives from the transport outcome, never from data nullness
func (r *Result[T]) Success() bool {
	return r != nil && r.Response.IsGood()
}

// ResultList is the typed outcome of a call returning a list. Data is never
// nil.
type ResultList[T Identifiable] struct {
	Context         *Context
	Response        *Response
	Data            []T
	ResponseContext *ResponseContext
}

// Success derives from the transport outcome, never from data nullness
func (r *ResultList[T]) Success() bool {
	return r != nil && r.Response.IsGood()
}

// Find returns the first item whose ID matches id
func (r *ResultList[T]) Find(id string) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	for _, item := range r.Data {
		if item.ID() == id {
			return item, true
		}
	}
	return zero, false
}

// details flattens the request echo into a diagnostics map.
func (s *RequestSnapshot) details() map[string]interface{} {
	if s == nil {
		return nil
	}
	out := make(map[string]interface{})
	if body := bytes.TrimSpace(s.Body); len(body) > 0 && !bytes.Equal(body, []byte("null")) {
		var v interface{}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&v); err == nil {
			out["body"] = v
		} else {
			out["body"] = string(body)
		}
	}
	for k, v := range s.Query {
		out["query."+k] = v
	}
	for k, v := range s.URLParams {
		out["urlParams."+k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// codeString is used by the info allow-list to compare codes case-insensitively.
func codeString(c Code) string {
	s := strings.TrimSpace(string(c))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return strings.ToLower(s)
}
