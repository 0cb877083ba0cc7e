// services/explorer_client.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/ratelimit"
)

// BlockHeader is the slim latest-block response from the explorer.
type BlockHeader struct {
	Hash   string
	Height int64
	Time   time.Time
}

// BlockDetail is the full block view the ingest job needs: the raw coinbase
// script for pool attribution, the coinbase reward in satoshis, and the
// block metadata that gets persisted.
type BlockDetail struct {
	Hash           string
	Height         int64
	Time           time.Time
	CoinbaseScript string // hex-encoded scriptSig of the coinbase input
	RewardSats     int64  // sum of coinbase outputs
	Size           int64
	Difficulty     float64
}

// BlockSource is the upstream block-explorer contract consumed by ingest.
type BlockSource interface {
	LatestBlock(ctx context.Context) (*BlockHeader, error)
	BlockDetail(ctx context.Context, hash string) (*BlockDetail, error)
}

// ExplorerClient talks to a blockchain.info-compatible explorer. All calls
// go through a shared single-concurrency 1 rps gate; the upstream throttles
// aggressively and every caller shares the same budget.
type ExplorerClient struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    ratelimit.Limiter
	maxRetries uint64
}

func NewExplorerClient(baseURL string) *ExplorerClient {
	return &ExplorerClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(1),
		maxRetries: 2, // 3 attempts total
	}
}

func (c *ExplorerClient) getJSON(ctx context.Context, path string, out interface{}) error {
	c.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: explorer returned status %d: %s", ErrUpstreamUnavailable, resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusNotFound {
			// Retrying a 404 will not help.
			return backoff.Permanent(err)
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode explorer response: %w", err)
	}
	return nil
}

// LatestBlock fetches the newest block header.
func (c *ExplorerClient) LatestBlock(ctx context.Context) (*BlockHeader, error) {
	var raw struct {
		Hash   string `json:"hash"`
		Height int64  `json:"height"`
		Time   int64  `json:"time"` // unix seconds
	}
	if err := c.getJSON(ctx, "/latestblock", &raw); err != nil {
		return nil, err
	}
	return &BlockHeader{
		Hash:   raw.Hash,
		Height: raw.Height,
		Time:   time.Unix(raw.Time, 0).UTC(),
	}, nil
}

// BlockDetail fetches the full block and extracts what ingest needs from
// the coinbase transaction. Transient failures are retried with exponential
// backoff, bounded at three attempts.
func (c *ExplorerClient) BlockDetail(ctx context.Context, hash string) (*BlockDetail, error) {
	var raw struct {
		Hash       string  `json:"hash"`
		Height     int64   `json:"height"`
		Time       int64   `json:"time"`
		Size       int64   `json:"size"`
		Difficulty float64 `json:"difficulty"`
		Tx         []struct {
			Inputs []struct {
				Script string `json:"script"`
			} `json:"inputs"`
			Out []struct {
				Value int64 `json:"value"` // satoshis
			} `json:"out"`
		} `json:"tx"`
	}

	fetch := func() error {
		return c.getJSON(ctx, "/rawblock/"+hash, &raw)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(fetch, policy); err != nil {
		return nil, err
	}

	if len(raw.Tx) == 0 || len(raw.Tx[0].Inputs) == 0 {
		return nil, fmt.Errorf("block %s has no coinbase transaction", hash)
	}

	// The coinbase is always the first transaction in the block.
	coinbase := raw.Tx[0]
	var rewardSats int64
	for _, out := range coinbase.Out {
		rewardSats += out.Value
	}

	return &BlockDetail{
		Hash:           raw.Hash,
		Height:         raw.Height,
		Time:           time.Unix(raw.Time, 0).UTC(),
		CoinbaseScript: coinbase.Inputs[0].Script,
		RewardSats:     rewardSats,
		Size:           raw.Size,
		Difficulty:     raw.Difficulty,
	}, nil
}
