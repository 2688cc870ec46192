package sdk

import (
	"strings"

	"github.com/google/uuid"
)

// Environment selects which deployment of the backend services a Context
// talks to. The lower-case name is substituted into host templates.
type Environment int

const (
	// Production is the live environment
	Production Environment = iota
	// Sandbox is the partner integration environment
	Sandbox
	// Staging is the pre-release environment
	Staging
	// QA is the internal test environment
	QA
)

// String returns the lower-case environment name
func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Sandbox:
		return "sandbox"
	case Staging:
		return "staging"
	case QA:
		return "qa"
	default:
		return "unknown"
	}
}

// ParseEnvironment maps a case-insensitive environment name to an Environment.
// Unknown names return false.
func ParseEnvironment(name string) (Environment, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "production", "prod", "live":
		return Production, true
	case "sandbox":
		return Sandbox, true
	case "staging":
		return Staging, true
	case "qa":
		return QA, true
	}
	return Production, false
}

// AuthMethod identifies how requests are authenticated.
type AuthMethod int

const (
	// AuthNone sends requests without credentials
	AuthNone AuthMethod = iota
	// AuthBasic sends username/password as HTTP Basic credentials
	AuthBasic
	// AuthJWT sends a bearer token obtained by logging in with username/password
	AuthJWT
	// AuthPredefinedJWT sends a caller-supplied bearer token as is
	AuthPredefinedJWT
)

// String returns the auth method name
func (m AuthMethod) String() string {
	switch m {
	case AuthNone:
		return "none"
	case AuthBasic:
		return "basic"
	case AuthJWT:
		return "jwt"
	case AuthPredefinedJWT:
		return "predefined_jwt"
	default:
		return "unknown"
	}
}

// Market is the sales market a request is made on behalf of. The zero value
// means no market is sent.
type Market string

// Known markets.
const (
	MarketUnset    Market = ""
	MarketUS       Market = "US"
	MarketUK       Market = "UK"
	MarketDE       Market = "DE"
	MarketAU       Market = "AU"
	MarketBroadway Market = "Broadway"
	MarketWestEnd  Market = "WestEnd"
)

// IsSet reports whether the market carries a non-blank value
func (m Market) IsSet() bool {
	return !isBlank(string(m))
}

// Credentials hold the secret material used by the AuthenticatorResolver.
// Username/Password serve Basic and JWT login; AccessToken serves
// PredefinedJWT or an already obtained JWT.
type Credentials struct {
	Username    string
	Password    string
	AccessToken string
	Method      AuthMethod
}

// Context carries the per-session metadata every request is built from.
//
// A Context is supplied by the caller and is only mutated by the SDK to
// record the correlation id returned by the server. It is not safe to share
// one Context between goroutines that send requests concurrently.
//
// Example:
//
//	c := &sdk.Context{
//	    Environment: sdk.Sandbox,
//	    Credentials: sdk.Credentials{Method: sdk.AuthPredefinedJWT, AccessToken: token},
//	    Affiliate:   "partner-42",
//	    Market:      sdk.MarketUK,
//	    CorrelationID: sdk.NewCorrelationID(),
//	}
type Context struct {
	Environment Environment
	Credentials Credentials
	Affiliate   string
	Market      Market
	// CorrelationID is sent to the server on every request
	CorrelationID string
	// ReceivedCorrelationID is the last correlation id returned by the server
	ReceivedCorrelationID string
	// Currency is the display currency requested by the caller (ISO 4217)
	Currency string
}

// NewContext creates a Context for the environment with a fresh correlation id.
func NewContext(env Environment, creds Credentials) *Context {
	return &Context{
		Environment:   env,
		Credentials:   creds,
		CorrelationID: NewCorrelationID(),
	}
}

// NewCorrelationID generates a new random correlation id
func NewCorrelationID() string {
	return uuid.New().String()
}

// recordCorrelation stores a server-issued correlation id, ignoring blanks.
func (c *Context) recordCorrelation(id string) {
	if c == nil || isBlank(id) {
		return
	}
	c.ReceivedCorrelationID = strings.TrimSpace(id)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
