package sdk

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// Service names one of the backend ticketing services.
type Service string

// Known services.
const (
	ServiceBasket    Service = "basket"
	ServiceInventory Service = "inventory"
	ServicePricing   Service = "pricing"
	ServiceVenue     Service = "venue"
	ServiceCheckout  Service = "checkout"
	ServiceContent   Service = "content"

	// ServiceAuth issues JWTs for username/password credentials
	ServiceAuth Service = "auth"
)

// DefaultHostTemplate is the base URL pattern used when none is configured.
// {service} and {environment} are substituted per request.
const DefaultHostTemplate = "https://{service}.{environment}.boxoffice-api.com"

// Config holds the configuration for the client.
// All fields are optional and have sensible defaults.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithHostTemplate("https://{service}-{environment}.internal").
//	    WithServiceURL(sdk.ServiceVenue, "http://localhost:9000").
//	    WithTimeout(10 * time.Second).
//	    WithMaxAttempts(5)
//
//	client, err := sdk.NewClient(config)
//
// or loaded from BOXOFFICE_* environment variables with LoadConfigFromEnv,
// or from a YAML file with LoadConfigFile.
type Config struct {
	// HostTemplate is the base URL pattern with {service} and {environment}
	// placeholders.
	// Default: DefaultHostTemplate
	HostTemplate string `yaml:"host_template" envconfig:"HOST_TEMPLATE"`

	// ServiceURLs overrides the base URL of individual services.
	// Values may contain the {environment} placeholder.
	ServiceURLs ServiceURLs `yaml:"service_urls" envconfig:"SERVICE_URLS"`

	// Timeout is the per-attempt HTTP timeout.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`

	// MaxAttempts bounds the number of attempts per call, first one included.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`

	// RetryConfig shapes the pause between attempts
	RetryConfig RetryConfig `yaml:"retry" envconfig:"RETRY"`

	// TransportConfig holds HTTP connection pool settings
	TransportConfig TransportConfig `yaml:"transport" envconfig:"TRANSPORT"`

	// DateFormat is the default layout for dates in bodies and queries.
	// Empty means RFC 3339.
	DateFormat string `yaml:"date_format" envconfig:"DATE_FORMAT"`

	// Headers are extra headers sent with every request
	Headers map[string]string `yaml:"headers" envconfig:"HEADERS"`

	// Serializer replaces the default JSON serializer
	Serializer Serializer `yaml:"-" ignored:"true"`

	// Backoff replaces the exponential backoff derived from RetryConfig
	Backoff Backoff `yaml:"-" ignored:"true"`

	// Observer receives request lifecycle events.
	// If nil, NoopObserver is used.
	Observer Observer `yaml:"-" ignored:"true"`

	// TokenSource supplies bearer tokens for AuthJWT contexts that have no
	// AccessToken yet.
	TokenSource TokenSource `yaml:"-" ignored:"true"`

	// HTTPClient replaces the client built from Timeout and TransportConfig
	HTTPClient *http.Client `yaml:"-" ignored:"true"`

	// TracerProvider creates the tracer for call spans.
	// If nil, the global provider is used.
	TracerProvider trace.TracerProvider `yaml:"-" ignored:"true"`
}

// ServiceURLs maps services to base URLs that bypass the host template.
type ServiceURLs map[Service]string

// Decode parses the env form "venue:http://localhost:9000,basket:http://b".
// Items split on their first colon only, so URLs keep their scheme and port.
func (u *ServiceURLs) Decode(value string) error {
	urls := make(ServiceURLs)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, url, ok := strings.Cut(item, ":")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return fmt.Errorf("invalid service url %q, want service:url", item)
		}
		urls[Service(name)] = url
	}
	*u = urls
	return nil
}

// RetryConfig holds the exponential backoff settings.
//
// Example:
//
//	config.RetryConfig = sdk.RetryConfig{
//	    InitialInterval: 50 * time.Millisecond,
//	    MaxInterval:     time.Second,
//	    Multiplier:      1.5,
//	    Jitter:          0.1,
//	}
type RetryConfig struct {
	// InitialInterval is the pause before the first retry.
	// Default: 100ms
	InitialInterval time.Duration `yaml:"initial_interval" envconfig:"INITIAL_INTERVAL"`

	// MaxInterval caps the pause.
	// Default: 2s
	MaxInterval time.Duration `yaml:"max_interval" envconfig:"MAX_INTERVAL"`

	// Multiplier grows the pause per retry.
	// Default: 2.0
	Multiplier float64 `yaml:"multiplier" envconfig:"MULTIPLIER"`

	// Jitter randomizes the pause by ±Jitter (0 to 1).
	// Default: 0.2
	Jitter float64 `yaml:"jitter" envconfig:"JITTER"`
}

// TransportConfig holds HTTP transport configuration for connection pooling.
type TransportConfig struct {
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	// Default: 10
	MaxConnsPerHost int `yaml:"max_conns_per_host" envconfig:"MAX_CONNS_PER_HOST"`
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout" envconfig:"IDLE_CONN_TIMEOUT"`
}

// DefaultConfig returns a Config with sensible defaults suitable for most use cases.
func DefaultConfig() *Config {
	return &Config{
		HostTemplate: DefaultHostTemplate,
		Timeout:      30 * time.Second,
		MaxAttempts:  DefaultMaxAttempts,
		RetryConfig: RetryConfig{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2.0,
			Jitter:          0.2,
		},
		TransportConfig: TransportConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
		Headers:  make(map[string]string),
		Observer: &NoopObserver{},
	}
}

// LoadConfigFromEnv overlays BOXOFFICE_* environment variables on
// DefaultConfig. Nested settings use the section name, e.g.
// BOXOFFICE_RETRY_MAX_INTERVAL=5s or
// BOXOFFICE_SERVICE_URLS=venue:http://localhost:9000.
func LoadConfigFromEnv() (*Config, error) {
	c := DefaultConfig()
	if err := envconfig.Process("BOXOFFICE", c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c, c.Validate()
}

// LoadConfigFile overlays a YAML file on DefaultConfig.
//
//	host_template: "https://{service}.{environment}.example.net"
//	max_attempts: 4
//	retry:
//	  initial_interval: 200ms
//	service_urls:
//	  venue: "http://localhost:9000"
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c, c.Validate()
}

// WithHostTemplate sets the base URL pattern
func (c *Config) WithHostTemplate(template string) *Config {
	c.HostTemplate = template
	return c
}

// WithServiceURL overrides the base URL of one service
func (c *Config) WithServiceURL(service Service, url string) *Config {
	if c.ServiceURLs == nil {
		c.ServiceURLs = make(ServiceURLs)
	}
	c.ServiceURLs[service] = url
	return c
}

// WithTimeout sets the per-attempt HTTP timeout
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithMaxAttempts sets the attempt bound, first attempt included.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithMaxAttempts(1) // never retry
func (c *Config) WithMaxAttempts(n int) *Config {
	c.MaxAttempts = n
	return c
}

// WithBackoff sets a custom pause strategy between attempts.
//
// Example:
//
//	config.WithBackoff(sdk.BackoffFunc(func(attempt int) time.Duration {
//	    return time.Duration(attempt*attempt) * 100 * time.Millisecond
//	}))
func (c *Config) WithBackoff(b Backoff) *Config {
	c.Backoff = b
	return c
}

// WithSerializer replaces the default JSON serializer
func (c *Config) WithSerializer(s Serializer) *Config {
	c.Serializer = s
	return c
}

// WithDateFormat sets the default date layout
func (c *Config) WithDateFormat(layout string) *Config {
	c.DateFormat = layout
	return c
}

// WithHeader adds a header sent with every request
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithObserver sets the observer for monitoring SDK operations
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithTokenSource sets the source of JWT bearer tokens
func (c *Config) WithTokenSource(ts TokenSource) *Config {
	c.TokenSource = ts
	return c
}

// WithHTTPClient replaces the HTTP client
func (c *Config) WithHTTPClient(client *http.Client) *Config {
	c.HTTPClient = client
	return c
}

// WithTracerProvider sets the tracer provider for call spans
func (c *Config) WithTracerProvider(tp trace.TracerProvider) *Config {
	c.TracerProvider = tp
	return c
}

// Validate validates the configuration and sets defaults for missing values.
// It is called automatically by NewClient.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HostTemplate) == "" && len(c.ServiceURLs) == 0 {
		return fmt.Errorf("%w: host template or service URLs required", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryConfig.InitialInterval <= 0 {
		c.RetryConfig.InitialInterval = 100 * time.Millisecond
	}
	if c.RetryConfig.MaxInterval <= 0 {
		c.RetryConfig.MaxInterval = 2 * time.Second
	}
	if c.RetryConfig.Multiplier <= 1 {
		c.RetryConfig.Multiplier = 2.0
	}
	if c.RetryConfig.Jitter < 0 || c.RetryConfig.Jitter > 1 {
		c.RetryConfig.Jitter = 0.2
	}
	if c.TransportConfig.MaxIdleConns <= 0 {
		c.TransportConfig.MaxIdleConns = 100
	}
	if c.TransportConfig.MaxConnsPerHost <= 0 {
		c.TransportConfig.MaxConnsPerHost = 10
	}
	if c.TransportConfig.IdleConnTimeout <= 0 {
		c.TransportConfig.IdleConnTimeout = 90 * time.Second
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	return nil
}

// BaseURL resolves the base URL of a service in an environment.
// A per-service override wins over the host template.
//
//	c.WithHostTemplate("https://{service}.{environment}.example.net")
//	c.BaseURL(sdk.ServiceVenue, sdk.Sandbox)
//	// "https://venue.sandbox.example.net"
func (c *Config) BaseURL(service Service, env Environment) (string, error) {
	template := c.HostTemplate
	if override, ok := c.ServiceURLs[service]; ok && strings.TrimSpace(override) != "" {
		template = override
	}
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("%w: no base URL for service %q", ErrInvalidConfig, service)
	}
	if strings.Contains(template, "{service}") && service == "" {
		return "", fmt.Errorf("%w: host template needs a service", ErrInvalidConfig)
	}

	url := strings.ReplaceAll(template, "{environment}", env.String())
	url = strings.ReplaceAll(url, "{service}", string(service))
	return strings.TrimRight(url, "/"), nil
}

func (c *Config) backoff() Backoff {
	if c.Backoff != nil {
		return c.Backoff
	}
	return &ExponentialBackoff{
		InitialInterval: c.RetryConfig.InitialInterval,
		MaxInterval:     c.RetryConfig.MaxInterval,
		Multiplier:      c.RetryConfig.Multiplier,
		Jitter:          c.RetryConfig.Jitter,
	}
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.TransportConfig.MaxIdleConns,
		MaxConnsPerHost:     c.TransportConfig.MaxConnsPerHost,
		IdleConnTimeout:     c.TransportConfig.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
	}
}
