// services/pool_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// PoolStatsSource yields the upstream pool's total hashrate in TH/s, the
// denominator of every block allocation.
type PoolStatsSource interface {
	PoolHashrate(ctx context.Context) (float64, error)
}

// PoolStatsClient queries the Luxor GraphQL API for the aggregate pool
// hashrate.
type PoolStatsClient struct {
	BaseURL    string
	APIKey     string
	OrgSlug    string
	HTTPClient *http.Client
}

func NewPoolStatsClient(baseURL, apiKey, orgSlug string) *PoolStatsClient {
	return &PoolStatsClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		OrgSlug:    orgSlug,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *PoolStatsClient) PoolHashrate(ctx context.Context) (float64, error) {
	query := map[string]interface{}{
		"query":     `query getPoolHashrate($mpn: MiningProfileName!, $orgSlug: String!) { getPoolHashrate(mpn: $mpn, orgSlug: $orgSlug) }`,
		"variables": map[string]string{"mpn": "BTC", "orgSlug": c.OrgSlug},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-lux-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: pool API returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var out struct {
		Data struct {
			GetPoolHashrate json.Number `json:"getPoolHashrate"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode pool API response: %w", err)
	}
	if len(out.Errors) > 0 {
		return 0, fmt.Errorf("%w: pool API error: %s", ErrUpstreamUnavailable, out.Errors[0].Message)
	}

	raw, err := strconv.ParseFloat(out.Data.GetPoolHashrate.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected pool hashrate value %q: %w", out.Data.GetPoolHashrate, err)
	}
	// API reports H/s.
	return raw / 1e12, nil
}
