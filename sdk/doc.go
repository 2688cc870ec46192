// Package sdk is the request-execution core shared by the boxoffice service
// bindings (basket, inventory, pricing, venue, checkout, content).
//
// # Features
//
// The SDK provides:
//   - Authenticated request building from a per-session Context
//   - Bounded retries with exponential, constant or no backoff
//   - Enveloped and raw response decoding into typed results
//   - One error type normalizing transport, protocol and domain failures
//   - Observer hooks with logrus and Prometheus implementations
//   - OpenTelemetry spans for every call
//
// # Basic Usage
//
//	client, err := sdk.NewClient(sdk.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sc := sdk.NewContext(sdk.Sandbox, sdk.Credentials{
//	    Method:      sdk.AuthPredefinedJWT,
//	    AccessToken: os.Getenv("BOXOFFICE_TOKEN"),
//	})
//	sc.Affiliate = "partner-42"
//
//	venues, err := sdk.SendList(ctx, client, sc, sdk.RequestDescriptor{
//	    Service: sdk.ServiceVenue,
//	    Path:    "/v2/venues",
//	    Query:   sdk.Query{{Name: "City", Value: "London"}},
//	}, sdk.Enveloped[[]Venue](), nil)
//
// # Results and Errors
//
// Send and SendList return an *Error for every failure. Fetch and FetchList
// return bad responses as data instead, so the caller can inspect
// Result.Success and Result.ResponseContext. Use errors.Is with ErrTransport,
// ErrProtocol and ErrDomain to branch on the failure kind:
//
//	_, err := sdk.Send(ctx, client, sc, desc, sdk.Enveloped[Basket](), &sdk.CallOptions{
//	    EscalateInfos: []string{"BASKET_EXPIRED"},
//	})
//	if errors.Is(err, sdk.ErrDomain) {
//	    fmt.Println(sdk.ErrorsOf(err))
//	}
//
// # Retries
//
// Transport errors and bad responses are both retried up to
// Config.MaxAttempts. Once attempts run out the last transport error is
// returned, or the last bad response is converted into an *Error.
//
// # Authentication
//
// ResolveAuthenticator maps Credentials to a bearer or basic authenticator.
// For AuthJWT contexts without an AccessToken, configure a TokenSource; the
// token package logs in and caches issued tokens.
package sdk
