// Package token obtains and caches JWTs for AuthJWT contexts.
//
// A Provider logs in with the context's username and password, caches the
// issued token in a ttlcache until shortly before its exp claim, and can
// share tokens between processes through a Store such as RedisStore.
//
//	client, _ := sdk.NewClient(config)
//	provider := token.NewProvider(client)
//	config.WithTokenSource(provider)
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/birbparty/boxoffice/internal/telemetry"
	"github.com/birbparty/boxoffice/sdk"
	"github.com/birbparty/boxoffice/sdk/ttlcache"
)

const (
	// DefaultTTL bounds how long a token is cached when it carries no exp claim
	DefaultTTL = 30 * time.Minute
	// DefaultSkew is subtracted from the exp claim
	DefaultSkew = 30 * time.Second
	// DefaultLoginPath is the login endpoint on sdk.ServiceAuth
	DefaultLoginPath = "/v1/login"
)

// LoginRequest is the body sent to the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the enveloped payload returned by the login endpoint.
type LoginResponse struct {
	Token string `json:"token"`
	// ExpiresIn is the token lifetime in seconds, used when the token
	// carries no exp claim
	ExpiresIn int64 `json:"expiresIn,omitempty"`
}

type issued struct {
	token   string
	expires time.Time
}

// Provider implements sdk.TokenSource.
type Provider struct {
	client     *sdk.Client
	cache      *ttlcache.Tolerant
	store      Store
	observer   sdk.Observer
	log        logrus.FieldLogger
	login      sdk.RequestDescriptor
	skew       time.Duration
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithStore adds a shared second-level store
func WithStore(s Store) Option {
	return func(p *Provider) { p.store = s }
}

// WithCache uses c instead of a private cache
func WithCache(c *ttlcache.Cache) Option {
	return func(p *Provider) {
		if c != nil {
			p.cache = ttlcache.NewTolerant(c)
		}
	}
}

// WithObserver reports token cache hits and misses
func WithObserver(o sdk.Observer) Option {
	return func(p *Provider) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithLogger sets the logger for store failures
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Provider) {
		if log != nil {
			p.log = log
		}
	}
}

// WithLoginEndpoint changes where credentials are exchanged
func WithLoginEndpoint(service sdk.Service, path string) Option {
	return func(p *Provider) {
		p.login.Service = service
		p.login.Path = path
	}
}

// WithSkew changes how long before exp a token is refreshed
func WithSkew(d time.Duration) Option {
	return func(p *Provider) {
		if d >= 0 {
			p.skew = d
		}
	}
}

// WithDefaultTTL changes the lifetime assumed for tokens without exp
func WithDefaultTTL(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.defaultTTL = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProvider creates a provider logging in through client.
func NewProvider(client *sdk.Client, opts ...Option) *Provider {
	p := &Provider{
		client:   client,
		observer: &sdk.NoopObserver{},
		log:      telemetry.L().WithField("component", "boxoffice-token"),
		login: sdk.RequestDescriptor{
			Service: sdk.ServiceAuth,
			Path:    DefaultLoginPath,
			Method:  http.MethodPost,
		},
		skew:       DefaultSkew,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = ttlcache.NewTolerant(ttlcache.New(ttlcache.WithClock(p.now)))
	}
	return p
}

// Key returns the cache key for a context: a hash of environment and
// username, so credentials never appear in keys or logs.
func Key(c *sdk.Context) string {
	sum := sha256.Sum256([]byte(c.Environment.String() + "\x00" + strings.ToLower(strings.TrimSpace(c.Credentials.Username))))
	return hex.EncodeToString(sum[:])
}

// Token returns a valid token for c, logging in when none is cached.
func (p *Provider) Token(ctx context.Context, c *sdk.Context) (string, error) {
	it, err := p.issue(ctx, c)
	if err != nil {
		return "", err
	}
	return it.token, nil
}

// Invalidate evicts the cached token for c, e.g. after a 401.
func (p *Provider) Invalidate(ctx context.Context, c *sdk.Context) error {
	if c == nil {
		return nil
	}
	key := Key(c)
	p.cache.Remove(key)
	if p.store != nil {
		return p.store.Delete(ctx, key)
	}
	return nil
}

// OAuth2 adapts the provider to an oauth2.TokenSource bound to c. The
// returned source reuses tokens until their expiry.
func (p *Provider) OAuth2(ctx context.Context, c *sdk.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &oauth2Source{ctx: ctx, c: c, p: p})
}

type oauth2Source struct {
	ctx context.Context
	c   *sdk.Context
	p   *Provider
}

func (s *oauth2Source) Token() (*oauth2.Token, error) {
	it, err := s.p.issue(s.ctx, s.c)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: it.token, TokenType: "Bearer", Expiry: it.expires}, nil
}

func (p *Provider) issue(ctx context.Context, c *sdk.Context) (issued, error) {
	if c == nil || strings.TrimSpace(c.Credentials.Username) == "" {
		return issued{}, ErrMissingCredentials
	}
	key := Key(c)

	// An expired hit is evicted and fetched once more. Fresh tokens are
	// returned even if the server clock makes them look expired.
	for attempt := 0; attempt < 2; attempt++ {
		miss := false
		it, err := ttlcache.GetOrAdd(p.cache.Cache, key, func() (issued, error) {
			miss = true
			return p.obtain(ctx, c, key)
		}, p.defaultTTL)
		if err != nil {
			return issued{}, err
		}

		if miss {
			p.observer.OnTokenCacheMiss(key)
			return it, nil
		}
		if p.now().Before(it.expires) {
			p.observer.OnTokenCacheHit(key)
			return it, nil
		}
		p.cache.Remove(key)
	}
	return issued{}, fmt.Errorf("token: could not obtain a valid token")
}

// obtain reads the shared store, else logs in and shares the result.
func (p *Provider) obtain(ctx context.Context, c *sdk.Context, key string) (issued, error) {
	share := p.store != nil
	if p.store != nil {
		tok, ttl, err := p.store.Get(ctx, key)
		switch {
		case err == nil && ttl > 0:
			return issued{token: tok, expires: p.now().Add(ttl)}, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			var storeErr *StoreError
			if errors.As(err, &storeErr) && !storeErr.IsRetryable() {
				// a store that cannot recover would fail the write as well
				share = false
			}
			p.log.WithError(err).WithField("share", share).Warn("token store lookup failed")
		}
	}

	it, err := p.loginWith(ctx, c)
	if err != nil {
		return issued{}, err
	}

	if share {
		if err := p.store.Set(ctx, key, it.token, it.expires.Sub(p.now())); err != nil {
			p.log.WithError(err).Warn("failed to share token")
		}
	}
	return it, nil
}

func (p *Provider) loginWith(ctx context.Context, c *sdk.Context) (issued, error) {
	desc := p.login
	desc.Body = LoginRequest{
		Username: c.Credentials.Username,
		Password: c.Credentials.Password,
	}

	res, err := sdk.Send(ctx, p.client, c, desc, sdk.Enveloped[LoginResponse](), &sdk.CallOptions{Unauthenticated: true})
	if err != nil {
		return issued{}, err
	}

	tok := strings.TrimSpace(res.Data.Token)
	if tok == "" {
		return issued{}, ErrEmptyToken
	}
	return issued{token: tok, expires: p.expiry(tok, res.Data.ExpiresIn)}, nil
}

// expiry derives the refresh deadline from the exp claim, else expiresIn,
// else the default TTL. The signature is not verified: the server that
// issued the token is the one that checks it.
func (p *Provider) expiry(tok string, expiresIn int64) time.Time {
	now := p.now()

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.Add(-p.skew)
		}
	}
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second).Add(-p.skew)
	}
	return now.Add(p.defaultTTL)
}
