package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceNotFound is returned when the API knows nothing about an asset
var ErrPriceNotFound = errors.New("coingecko: price not found")

// Client represents a CoinGecko simple-price API client
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new client. apiKey may be empty for the public tier.
func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// simplePriceResponse maps asset id -> currency -> price
type simplePriceResponse map[string]map[string]json.Number

// GetUSDPrice returns the USD price of the asset with the given CoinGecko id
func (c *Client) GetUSDPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	assetID = strings.ToLower(strings.TrimSpace(assetID))
	if assetID == "" {
		return decimal.Zero, ErrPriceNotFound
	}

	q := url.Values{}
	q.Set("ids", assetID)
	q.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coingecko API error: status %d", resp.StatusCode)
	}

	var result simplePriceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse response: %w", err)
	}

	raw, ok := result[assetID]["usd"]
	if !ok {
		return decimal.Zero, ErrPriceNotFound
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", raw.String(), err)
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrPriceNotFound
	}

	return price, nil
}
