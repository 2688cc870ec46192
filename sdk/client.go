package sdk

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/birbparty/boxoffice/internal/telemetry"
)

const tracerName = "github.com/birbparty/boxoffice/sdk"

// DecodeErrorMessage describes good responses whose body could not be decoded.
const DecodeErrorMessage = "The response body could not be decoded."

// TokenSource supplies bearer tokens for AuthJWT contexts. The token package
// provides a caching implementation.
type TokenSource interface {
	Token(ctx context.Context, c *Context) (string, error)
}

// CallOptions tune a single call. A nil *CallOptions uses the defaults.
type CallOptions struct {
	// MaxAttempts overrides the configured attempt bound when >= 1
	MaxAttempts int
	// Message is a predefined error message that wins over everything the
	// response says
	Message string
	// EscalateInfos lists structured info codes that turn an otherwise
	// successful response into a DomainFailure
	EscalateInfos []string
	// Unauthenticated sends the request without credentials
	Unauthenticated bool
	// BaseURL bypasses service resolution
	BaseURL string
}

// Client executes RequestDescriptors against the backend services.
// A Client is safe for concurrent use; the Contexts passed to it are not.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sc := sdk.NewContext(sdk.Sandbox, sdk.Credentials{
//	    Method:      sdk.AuthPredefinedJWT,
//	    AccessToken: token,
//	})
//
//	res, err := sdk.Send(ctx, client, sc, sdk.RequestDescriptor{
//	    Service: sdk.ServiceBasket,
//	    Path:    "/v1/baskets/{0}",
//	    PathArgs: []string{basketID},
//	}, sdk.Enveloped[Basket](), nil)
//	if err != nil {
//	    var sdkErr *sdk.Error
//	    if errors.As(err, &sdkErr) {
//	        log.Printf("basket lookup failed: %s", sdkErr.Message)
//	    }
//	    return err
//	}
//	fmt.Println(res.Data.Reference)
type Client struct {
	config     *Config
	httpClient *http.Client
	executor   *Executor
	observer   Observer
	tracer     trace.Tracer
	serializer Serializer
}

// NewClient creates a client. The config is validated and defaults are
// filled in; a nil config uses DefaultConfig.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	serializer := config.Serializer
	if serializer == nil {
		serializer = JSONSerializer{}
	}

	return &Client{
		config:     config,
		httpClient: config.httpClient(),
		executor:   NewExecutor(config.MaxAttempts, config.backoff(), config.Observer),
		observer:   config.Observer,
		tracer:     tp.Tracer(tracerName, trace.WithInstrumentationVersion(Version)),
		serializer: serializer,
	}, nil
}

// Config returns the validated configuration
func (c *Client) Config() *Config {
	return c.config
}

// Do builds and executes a request and returns the raw outcome of the last
// attempt. Bad responses are returned with a nil error; the error is non-nil
// only when no response could be obtained, and is then a TransportFailure
// *Error. The correlation id returned by the server is recorded on sc.
func (c *Client) Do(ctx context.Context, sc *Context, desc RequestDescriptor, opts *CallOptions) (*Response, *WireRequest, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	if desc.DateFormat == "" {
		desc.DateFormat = c.config.DateFormat
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		env := Production
		if sc != nil {
			env = sc.Environment
		}
		u, err := c.config.BaseURL(desc.Service, env)
		if err != nil {
			return nil, nil, err
		}
		baseURL = u
	}

	wire, err := BuildRequest(sc, baseURL, desc, c.serializer)
	if err != nil {
		return nil, nil, NewTransportError(err, nil, sc)
	}
	for k, v := range c.config.Headers {
		if isBlank(k) || isBlank(v) {
			continue
		}
		if _, exists := wire.Headers[k]; !exists {
			wire.Headers[k] = v
		}
	}

	if opts.Unauthenticated {
		wire.authenticator = nil
	} else if sc != nil && wire.authenticator == nil && sc.Credentials.Method == AuthJWT && c.config.TokenSource != nil {
		token, err := c.config.TokenSource.Token(ctx, sc)
		if err != nil {
			var sdkErr *Error
			if errors.As(err, &sdkErr) {
				return nil, wire, sdkErr
			}
			return nil, wire, NewTransportError(err, wire, sc)
		}
		creds := sc.Credentials
		creds.AccessToken = token
		wire.authenticator = ResolveAuthenticator(creds)
	}

	resp, err := c.executor.Execute(ctx, c.httpClient, wire, opts.MaxAttempts)
	if err != nil {
		return nil, wire, NewTransportError(err, wire, sc)
	}
	if sc != nil {
		sc.recordCorrelation(resp.Header.Get(HeaderCorrelationID))
	}
	return resp, wire, nil
}

// call wraps Do with tracing and observer notifications and decodes the
// response with dec. When strict is set, bad responses and escalated infos
// become errors.
func call[T any](ctx context.Context, c *Client, sc *Context, desc RequestDescriptor, dec Decoder[T], opts *CallOptions, strict bool) (*Result[T], error) {
	method := strings.ToUpper(strings.TrimSpace(desc.Method))
	if method == "" {
		method = http.MethodGet
	}
	if opts == nil {
		opts = &CallOptions{}
	}

	ctx, span := c.tracer.Start(ctx, "boxoffice "+method+" "+desc.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("boxoffice.service", string(desc.Service)),
			attribute.String("boxoffice.path", desc.Path),
		),
	)
	defer span.End()

	start := time.Now()
	c.observer.OnRequestStart(method, desc.Path)

	var callErr error
	defer func() {
		c.observer.OnRequestEnd(method, desc.Path, time.Since(start), callErr)
		telemetry.RecordError(ctx, callErr)
	}()

	resp, wire, err := c.Do(ctx, sc, desc, opts)
	if err != nil {
		callErr = err
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int("boxoffice.attempts", resp.Attempts),
	)
	if sc != nil && sc.ReceivedCorrelationID != "" {
		span.SetAttributes(attribute.String("boxoffice.correlation_id", sc.ReceivedCorrelationID))
	}

	decoded, decodeErr := dec(resp, wire.Serializer())
	result := &Result[T]{
		Context:         sc,
		Response:        resp,
		Data:            decoded.Data,
		ResponseContext: decoded.Context,
	}

	if decodeErr != nil {
		callErr = NewResponseError(ResponseFailure{
			Response: resp,
			Request:  wire,
			Session:  sc,
			Options:  DiagnoseOptions{Message: DecodeErrorMessage},
			Cause:    decodeErr,
		})
		return nil, callErr
	}

	failure := failureOf(resp, decoded.Context, decoded.Request, wire, sc, opts)
	if strict {
		if callErr = failure; callErr != nil {
			return nil, callErr
		}
	} else if resp.IsBad() {
		// returned as data, but observers still see the failed outcome
		callErr = failure
	}
	return result, nil
}

// failureOf converts bad responses and escalated infos into an *Error.
// It returns nil for good responses without escalations.
func failureOf(resp *Response, rc *ResponseContext, echo *RequestSnapshot, wire *WireRequest, sc *Context, opts *CallOptions) error {
	f := ResponseFailure{
		Response: resp,
		Context:  rc,
		Echo:     echo,
		Request:  wire,
		Session:  sc,
		Options:  DiagnoseOptions{Message: opts.Message},
	}

	escalated := len(opts.EscalateInfos) > 0 &&
		len(structuredEntries(rc, opts.EscalateInfos)) > 0

	if resp.IsBad() {
		if !rc.HasErrors() && escalated {
			f.Options.InfoCodes = opts.EscalateInfos
		}
		return NewResponseError(f)
	}
	if escalated {
		f.Options.InfoCodes = opts.EscalateInfos
		return NewResponseError(f)
	}
	return nil
}

// Fetch executes the request and decodes the response without converting
// bad responses into errors: inspect Result.Success instead. The error is
// non-nil for transport failures and for good responses that could not be
// decoded.
func Fetch[T any](ctx context.Context, c *Client, sc *Context, desc RequestDescriptor, dec Decoder[T], opts *CallOptions) (*Result[T], error) {
	return call(ctx, c, sc, desc, dec, opts, false)
}

// Send executes the request, decodes the response and returns an *Error for
// every failure: transport, bad responses and escalated infos alike.
func Send[T any](ctx context.Context, c *Client, sc *Context, desc RequestDescriptor, dec Decoder[T], opts *CallOptions) (*Result[T], error) {
	return call(ctx, c, sc, desc, dec, opts, true)
}

// FetchList is Fetch for list payloads. Data is never nil.
func FetchList[T Identifiable](ctx context.Context, c *Client, sc *Context, desc RequestDescriptor, dec Decoder[[]T], opts *CallOptions) (*ResultList[T], error) {
	res, err := Fetch(ctx, c, sc, desc, dec, opts)
	if err != nil {
		return nil, err
	}
	return toList(res), nil
}

// SendList is Send for list payloads. Data is never nil.
func SendList[T Identifiable](ctx context.Context, c *Client, sc *Context, desc RequestDescriptor, dec Decoder[[]T], opts *CallOptions) (*ResultList[T], error) {
	res, err := Send(ctx, c, sc, desc, dec, opts)
	if err != nil {
		return nil, err
	}
	return toList(res), nil
}

func toList[T Identifiable](res *Result[[]T]) *ResultList[T] {
	data := res.Data
	if data == nil {
		data = []T{}
	}
	return &ResultList[T]{
		Context:         res.Context,
		Response:        res.Response,
		Data:            data,
		ResponseContext: res.ResponseContext,
	}
}
