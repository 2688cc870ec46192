package sdk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, DefaultHostTemplate, c.HostTemplate)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, c.RetryConfig.InitialInterval)
	assert.NotNil(t, c.Observer)
	require.NoError(t, c.Validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Run("requires a base URL source", func(t *testing.T) {
		err := (&Config{}).Validate()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("service URLs alone are enough", func(t *testing.T) {
		c := &Config{ServiceURLs: map[Service]string{ServiceVenue: "http://localhost:9000"}}
		require.NoError(t, c.Validate())
	})

	t.Run("fills defaults", func(t *testing.T) {
		c := &Config{
			HostTemplate: "http://localhost",
			RetryConfig:  RetryConfig{Multiplier: 0.5, Jitter: 3},
		}
		require.NoError(t, c.Validate())
		assert.Equal(t, 30*time.Second, c.Timeout)
		assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts)
		assert.Equal(t, 100*time.Millisecond, c.RetryConfig.InitialInterval)
		assert.Equal(t, 2*time.Second, c.RetryConfig.MaxInterval)
		assert.Equal(t, 2.0, c.RetryConfig.Multiplier)
		assert.Equal(t, 0.2, c.RetryConfig.Jitter)
		assert.Equal(t, 100, c.TransportConfig.MaxIdleConns)
		assert.Equal(t, 10, c.TransportConfig.MaxConnsPerHost)
		assert.Equal(t, 90*time.Second, c.TransportConfig.IdleConnTimeout)
		assert.IsType(t, &NoopObserver{}, c.Observer)
	})
}

func TestConfig_BaseURL(t *testing.T) {
	c := DefaultConfig().
		WithHostTemplate("https://{service}.{environment}.example.net/").
		WithServiceURL(ServiceVenue, "http://venue-{environment}.local:9000")

	tests := []struct {
		name    string
		service Service
		env     Environment
		want    string
		wantErr bool
	}{
		{name: "template", service: ServiceBasket, env: Sandbox, want: "https://basket.sandbox.example.net"},
		{name: "production", service: ServicePricing, env: Production, want: "https://pricing.production.example.net"},
		{name: "override", service: ServiceVenue, env: QA, want: "http://venue-qa.local:9000"},
		{name: "missing service", service: "", env: Staging, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.BaseURL(tt.service, tt.env)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	fixed := DefaultConfig().WithHostTemplate("http://localhost:8080")
	got, err := fixed.BaseURL("", Production)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", got)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BOXOFFICE_HOST_TEMPLATE", "http://{service}.test")
	t.Setenv("BOXOFFICE_MAX_ATTEMPTS", "5")
	t.Setenv("BOXOFFICE_TIMEOUT", "10s")
	t.Setenv("BOXOFFICE_RETRY_MAX_INTERVAL", "5s")
	t.Setenv("BOXOFFICE_SERVICE_URLS", "venue:http://localhost:9000")
	t.Setenv("BOXOFFICE_HEADERS", "X-Partner:acme")
	t.Setenv("BOXOFFICE_DATE_FORMAT", "2006-01-02")

	c, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://{service}.test", c.HostTemplate)
	assert.Equal(t, 5, c.MaxAttempts)
	assert.Equal(t, 10*time.Second, c.Timeout)
	assert.Equal(t, 5*time.Second, c.RetryConfig.MaxInterval)
	assert.Equal(t, 100*time.Millisecond, c.RetryConfig.InitialInterval)
	assert.Equal(t, "http://localhost:9000", c.ServiceURLs[ServiceVenue])
	assert.Equal(t, "acme", c.Headers["X-Partner"])
	assert.Equal(t, "2006-01-02", c.DateFormat)
}

func TestServiceURLs_Decode(t *testing.T) {
	var urls ServiceURLs
	require.NoError(t, urls.Decode("venue:http://localhost:9000, basket:https://basket.internal:8443/v2"))
	assert.Equal(t, ServiceURLs{
		ServiceVenue:  "http://localhost:9000",
		ServiceBasket: "https://basket.internal:8443/v2",
	}, urls)

	assert.Error(t, urls.Decode("venue"))
	assert.Error(t, urls.Decode(":http://localhost"))
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("BOXOFFICE_MAX_ATTEMPTS", "many")
	_, err := LoadConfigFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boxoffice.yaml")
	content := `
host_template: "https://{service}.{environment}.example.net"
max_attempts: 4
timeout: 15s
retry:
  initial_interval: 200ms
service_urls:
  venue: "http://localhost:9000"
headers:
  X-Partner: acme
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, c.MaxAttempts)
	assert.Equal(t, 15*time.Second, c.Timeout)
	assert.Equal(t, 200*time.Millisecond, c.RetryConfig.InitialInterval)
	assert.Equal(t, 2*time.Second, c.RetryConfig.MaxInterval)
	assert.Equal(t, "http://localhost:9000", c.ServiceURLs[ServiceVenue])
	assert.Equal(t, "acme", c.Headers["X-Partner"])

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("max_attempts: [1, 2"), 0o600))
	_, err = LoadConfigFile(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Builders(t *testing.T) {
	obs := &recordingObserver{}
	c := DefaultConfig().
		WithTimeout(time.Second).
		WithMaxAttempts(7).
		WithDateFormat("2006").
		WithHeader("X-A", "1").
		WithSerializer(XMLSerializer{}).
		WithObserver(obs)

	assert.Equal(t, time.Second, c.Timeout)
	assert.Equal(t, 7, c.MaxAttempts)
	assert.Equal(t, "2006", c.DateFormat)
	assert.Equal(t, "1", c.Headers["X-A"])
	assert.Equal(t, XMLSerializer{}, c.Serializer)
	assert.Same(t, obs, c.Observer)

	b, ok := c.backoff().(*ExponentialBackoff)
	require.True(t, ok)
	assert.Equal(t, c.RetryConfig.MaxInterval, b.MaxInterval)

	c.WithBackoff(NoBackoff{})
	assert.Equal(t, NoBackoff{}, c.backoff())

	hc := c.httpClient()
	assert.Equal(t, time.Second, hc.Timeout)
}
