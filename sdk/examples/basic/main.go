package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/birbparty/boxoffice/sdk"
	"github.com/birbparty/boxoffice/sdk/token"
)

type Basket struct {
	Reference string       `json:"reference"`
	Currency  string       `json:"currency"`
	Total     int          `json:"total"`
	Items     []BasketItem `json:"items"`
}

type BasketItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type Venue struct {
	VenueID string `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city"`
}

func (v Venue) ID() string { return v.VenueID }

func main() {
	// BOXOFFICE_HOST_TEMPLATE, BOXOFFICE_SERVICE_URLS, BOXOFFICE_MAX_ATTEMPTS...
	config, err := sdk.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.WithTimeout(10 * time.Second)

	// The provider logs in through a client of its own.
	loginClient, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	config.WithTokenSource(token.NewProvider(loginClient))

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	sc := sdk.NewContext(sdk.Sandbox, sdk.Credentials{
		Method:   sdk.AuthJWT,
		Username: os.Getenv("BOXOFFICE_USERNAME"),
		Password: os.Getenv("BOXOFFICE_PASSWORD"),
	})
	sc.Affiliate = os.Getenv("BOXOFFICE_AFFILIATE")
	sc.Market = sdk.MarketUK

	ctx := context.Background()

	// Example 1: a single enveloped resource
	fmt.Println("--- Example 1: Basket ---")
	res, err := sdk.Send(ctx, client, sc, sdk.RequestDescriptor{
		Service:  sdk.ServiceBasket,
		Path:     "/v1/baskets/{0}",
		PathArgs: []string{"B-1001"},
		Query:    sdk.Query{}.Add("Expand", "items").Add("Currency", nil),
	}, sdk.Enveloped[Basket](), nil)
	if err != nil {
		report(err)
	} else {
		fmt.Printf("Basket %s: %d %s, %d items\n", res.Data.Reference, res.Data.Total, res.Data.Currency, len(res.Data.Items))
	}

	// Example 2: a list with lookup by id
	fmt.Println("\n--- Example 2: Venues ---")
	venues, err := sdk.SendList(ctx, client, sc, sdk.RequestDescriptor{
		Service: sdk.ServiceVenue,
		Path:    "/v1/venues",
		Query:   sdk.Query{{Name: "City", Value: "London"}},
	}, sdk.Enveloped[[]Venue](), nil)
	if err != nil {
		report(err)
	} else {
		for _, v := range venues.Data {
			fmt.Printf("  %s: %s\n", v.ID(), v.Name)
		}
		if v, ok := venues.Find("138"); ok {
			fmt.Printf("Found venue 138: %s\n", v.Name)
		}
	}

	// Example 3: a POST with a predefined message and escalated infos
	fmt.Println("\n--- Example 3: Add item ---")
	_, err = sdk.Send(ctx, client, sc, sdk.RequestDescriptor{
		Service:  sdk.ServiceBasket,
		Method:   "POST",
		Path:     "/v1/baskets/{0}/items",
		PathArgs: []string{"B-1001"},
		Body:     BasketItem{SKU: "TKT-STALLS-A12", Quantity: 2},
	}, sdk.Enveloped[Basket](), &sdk.CallOptions{
		Message:       "Could not add the tickets to the basket",
		EscalateInfos: []string{"8001"},
	})
	if err != nil {
		report(err)
	}

	// Example 4: inspect a bad response without an error
	fmt.Println("\n--- Example 4: Fetch ---")
	raw, err := sdk.Fetch(ctx, client, sc, sdk.RequestDescriptor{
		Service:  sdk.ServiceInventory,
		Path:     "/v1/performances/{0}/availability",
		PathArgs: []string{"P-77"},
	}, sdk.Raw[map[string]interface{}](), &sdk.CallOptions{MaxAttempts: 1})
	if err != nil {
		report(err)
	} else {
		fmt.Printf("Success: %v (status %d, attempts %d)\n", raw.Success(), raw.Response.StatusCode, raw.Response.Attempts)
	}

	fmt.Printf("\nServer correlation id: %s\n", sc.ReceivedCorrelationID)
}

func report(err error) {
	var sdkErr *sdk.Error
	if !errors.As(err, &sdkErr) {
		log.Printf("Unexpected error: %v", err)
		return
	}

	switch {
	case errors.Is(err, sdk.ErrDomain):
		fmt.Printf("Rejected: %s\n", sdkErr.Message)
		for _, e := range sdkErr.Errors {
			fmt.Printf("  - %s\n", e)
		}
	case errors.Is(err, sdk.ErrProtocol):
		fmt.Printf("Server error: %s (retryable: %v)\n", sdkErr.Message, sdkErr.IsRetryable())
	case errors.Is(err, sdk.ErrTransport):
		fmt.Printf("Unreachable: %s\n", sdkErr.Message)
	}
	fmt.Println(sdkErr.DebugInfo())
}
