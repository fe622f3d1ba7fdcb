// Package marketdata reads token valuations from the DexScreener API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liamashdown/tokenradar/internal/metrics"
	"github.com/liamashdown/tokenradar/internal/ratelimit"
	"github.com/shopspring/decimal"
)

const apiName = "dexscreener"

// Client handles communication with the DexScreener API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient creates a new DexScreener client
func NewClient(baseURL string, rps float64) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    ratelimit.New(rps),
	}
}

// GetPairs fetches every pair that trades the token
func (c *Client) GetPairs(ctx context.Context, contractID string) (pairs []Pair, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAPIRequest(apiName, "tokens", time.Since(start), err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + "/latest/dex/tokens/" + url.PathEscape(contractID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out TokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Pairs, nil
}

// Valuation returns one reading per poll: the first pair listing the token
// as its base asset, fdv falling back to market cap. Other pairs trade at
// their own prices and are ignored. The result is invalid when the token is
// unlisted or that pair carries no valuation yet.
func (c *Client) Valuation(ctx context.Context, contractID string) (decimal.NullDecimal, error) {
	pairs, err := c.GetPairs(ctx, contractID)
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	for i := range pairs {
		if pairs[i].BaseToken.Address != contractID {
			continue
		}
		if v, ok := pairs[i].Valuation(); ok {
			return decimal.NewNullDecimal(v), nil
		}
		break
	}
	return decimal.NullDecimal{}, nil
}
