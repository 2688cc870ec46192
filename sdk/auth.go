package sdk

import (
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Authenticator decorates an outgoing request with credential material.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// ResolveAuthenticator maps credentials to the Authenticator for their method.
//
// JWT and PredefinedJWT credentials need a non-blank AccessToken; when it is
// missing the result is nil and the caller proceeds unauthenticated. Basic
// always yields an authenticator, even for empty username/password. None and
// unrecognized methods yield nil.
//
// Example:
//
//	auth := sdk.ResolveAuthenticator(sdk.Credentials{
//	    Method:      sdk.AuthPredefinedJWT,
//	    AccessToken: os.Getenv("BOXOFFICE_TOKEN"),
//	})
//	if auth != nil {
//	    _ = auth.Authenticate(req)
//	}
func ResolveAuthenticator(creds Credentials) Authenticator {
	switch creds.Method {
	case AuthJWT, AuthPredefinedJWT:
		token := strings.TrimSpace(creds.AccessToken)
		if token == "" {
			return nil
		}
		return &bearerAuthenticator{token: &oauth2.Token{AccessToken: token, TokenType: "Bearer"}}
	case AuthBasic:
		return &basicAuthenticator{username: creds.Username, password: creds.Password}
	default:
		return nil
	}
}

type bearerAuthenticator struct {
	token *oauth2.Token
}

func (a *bearerAuthenticator) Authenticate(req *http.Request) error {
	a.token.SetAuthHeader(req)
	return nil
}

type basicAuthenticator struct {
	username string
	password string
}

func (a *basicAuthenticator) Authenticate(req *http.Request) error {
	req.SetBasicAuth(a.username, a.password)
	return nil
}
