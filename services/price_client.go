// services/price_client.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource is the spot-price oracle contract.
type PriceSource interface {
	Price(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// PriceClient fetches spot prices from a Binance-compatible ticker API.
type PriceClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewPriceClient(baseURL string) *PriceClient {
	return &PriceClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Price returns the base/quote spot price. USD quotes trade as USDT on the
// upstream exchange.
func (c *PriceClient) Price(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if quote == "USD" {
		quote = "USDT"
	}
	symbol := base + quote

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v3/ticker/price?symbol="+symbol, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: price API returned status %d for %s", ErrUpstreamUnavailable, resp.StatusCode, symbol)
	}

	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}
	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unexpected price %q for %s: %w", out.Price, symbol, err)
	}
	if price.IsZero() || price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price for %s", ErrUpstreamUnavailable, symbol)
	}
	return price, nil
}
