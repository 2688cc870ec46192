package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Header names set by RequestBuilder.
const (
	HeaderSDKClient     = "X-Sdk-Client"
	HeaderAffiliate     = "X-Affiliate"
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderMarket        = "X-Market"
)

// Param is one named query value. A nil Value drops the param.
type Param struct {
	Name  string
	Value interface{}
}

// Query is an ordered list of query params.
//
// Example:
//
//	q := sdk.Query{
//	    {Name: "VenueId", Value: 138},
//	    {Name: "Date", Value: time.Now()},
//	    {Name: "Affiliate", Value: nil}, // dropped
//	}
type Query []Param

// Add appends a param and returns the query for chaining
func (q Query) Add(name string, value interface{}) Query {
	return append(q, Param{Name: name, Value: value})
}

// RequestDescriptor describes one endpoint call.
//
// Path may contain {0}, {1}, ... placeholders that are replaced by the
// url-escaped PathArgs.
type RequestDescriptor struct {
	// Service selects the base URL
	Service  Service
	Path     string
	PathArgs []string
	Method   string
	Body     interface{}
	Query    Query
	// DateFormat overrides the layout used for dates in the body and query
	DateFormat string
	// Serializer replaces the configured serializer for this call
	Serializer Serializer
}

// WireRequest holds the resolved wire-level parameters of a request. It is
// immutable once built and may be sent several times by the executor.
type WireRequest struct {
	Method  string
	BaseURL string
	Path    string
	// Headers always contains at least the SDK identity header
	Headers map[string]string
	// Query is nil when no param survived; otherwise non-empty
	Query  map[string]string
	Body   []byte
	Format DataFormat

	serializer    Serializer
	authenticator Authenticator
}

// URL returns the absolute request URL including the encoded query
func (w *WireRequest) URL() string {
	u := strings.TrimRight(w.BaseURL, "/") + "/" + strings.TrimLeft(w.Path, "/")
	if len(w.Query) == 0 {
		return u
	}
	values := url.Values{}
	for k, v := range w.Query {
		values.Set(k, v)
	}
	return u + "?" + values.Encode()
}

// Serializer returns the serializer resolved for this request
func (w *WireRequest) Serializer() Serializer {
	return w.serializer
}

// HTTPRequest builds a fresh *http.Request. Every call returns a new request
// with its own body reader so retries can resend it.
func (w *WireRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if w.Body != nil {
		body = bytes.NewReader(w.Body)
	}

	req, err := http.NewRequestWithContext(ctx, w.Method, w.URL(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", w.Format.ContentType())
	if w.Body != nil {
		req.Header.Set("Content-Type", w.Format.ContentType())
	}
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	if w.authenticator != nil {
		if err := w.authenticator.Authenticate(req); err != nil {
			return nil, fmt.Errorf("failed to authenticate request: %w", err)
		}
	}
	return req, nil
}

// snapshot returns a copy safe to attach to errors. Authentication is
// applied per attempt and never part of Headers.
func (w *WireRequest) snapshot() *WireRequest {
	if w == nil {
		return nil
	}
	cp := *w
	cp.authenticator = nil
	cp.Headers = copyStringMap(w.Headers)
	cp.Query = copyStringMap(w.Query)
	return &cp
}

// BuildRequest resolves a descriptor into wire-level parameters.
//
// The only error source is body serialization; descriptor content itself is
// never validated here.
func BuildRequest(c *Context, baseURL string, desc RequestDescriptor, fallback Serializer) (*WireRequest, error) {
	method := strings.ToUpper(strings.TrimSpace(desc.Method))
	if method == "" {
		method = http.MethodGet
	}

	s := resolveSerializer(desc.Serializer, fallback, desc.DateFormat)

	var body []byte
	if desc.Body != nil {
		data, err := s.Marshal(desc.Body)
		if err != nil {
			return nil, err
		}
		body = data
	}

	w := &WireRequest{
		Method:     method,
		BaseURL:    baseURL,
		Path:       buildPath(desc.Path, desc.PathArgs...),
		Headers:    buildHeaders(c),
		Query:      buildQuery(desc.Query, desc.DateFormat),
		Body:       body,
		Format:     s.Format(),
		serializer: s,
	}
	if c != nil {
		w.authenticator = ResolveAuthenticator(c.Credentials)
	}
	return w, nil
}

func buildHeaders(c *Context) map[string]string {
	headers := map[string]string{
		HeaderSDKClient: clientIdentity(),
	}
	if c == nil {
		return headers
	}
	if !isBlank(c.Affiliate) {
		headers[HeaderAffiliate] = strings.TrimSpace(c.Affiliate)
	}
	if !isBlank(c.CorrelationID) {
		headers[HeaderCorrelationID] = strings.TrimSpace(c.CorrelationID)
	}
	if c.Market.IsSet() {
		headers[HeaderMarket] = strings.TrimSpace(string(c.Market))
	}
	return headers
}

// buildQuery lower-cases names and drops nil values. It returns nil rather
// than an empty map.
func buildQuery(q Query, dateFormat string) map[string]string {
	var out map[string]string
	for _, p := range q {
		value, ok := formatQueryValue(p.Value, dateFormat)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(q))
		}
		out[strings.ToLower(p.Name)] = value
	}
	return out
}

// formatQueryValue converts a value to its locale-independent string form.
// It reports false for nil values and nil pointers.
func formatQueryValue(v interface{}, dateFormat string) (string, bool) {
	if v == nil {
		return "", false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	v = rv.Interface()

	switch val := v.(type) {
	case string:
		return val, true
	case time.Time:
		layout := dateFormat
		if layout == "" {
			layout = time.RFC3339
		}
		return val.Format(layout), true
	case time.Duration:
		return val.String(), true
	case fmt.Stringer:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.String:
		return rv.String(), true
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if s, ok := formatQueryValue(rv.Index(i).Interface(), dateFormat); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ","), true
	}
	return fmt.Sprint(v), true
}

// buildPath replaces {0}, {1}, ... placeholders with the escaped arguments.
// Spaces are encoded as %20 since '+' is only meaningful in query strings.
//
//	buildPath("/v1/baskets/{0}/items/{1}", "ab c", "7")
//	// "/v1/baskets/ab%20c/items/7"
func buildPath(pattern string, args ...string) string {
	path := pattern
	for i, arg := range args {
		placeholder := fmt.Sprintf("{%d}", i)
		escaped := strings.ReplaceAll(url.QueryEscape(arg), "+", "%20")
		path = strings.Replace(path, placeholder, escaped, 1)
	}
	return path
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
