package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"token-scout/internal/ratelimit"
)

// DefaultDexScreenerBaseURL is the public DexScreener API endpoint.
const DefaultDexScreenerBaseURL = "https://api.dexscreener.com"

// dexScreenerService is the rate limiter bucket for pair lookups.
const dexScreenerService = "dexscreener:pairs"

// PairData is the market view of the most liquid pair for a token.
type PairData struct {
	PairAddress  string
	Name         string
	Symbol       string
	PriceUSD     float64
	MarketCapUSD float64
	LiquidityUSD float64
	Volume24hUSD float64
	BuysH1       int
	SellsH1      int
	BuysH24      int
	SellsH24     int
	CreatedAtMs  int64
}

// DexScreenerClient fetches pair market data over the public REST API.
// All calls go through the shared rate limiter.
type DexScreenerClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	retry      ratelimit.ExecuteOptions
}

// DexScreenerOption customizes a DexScreenerClient.
type DexScreenerOption func(*DexScreenerClient)

// WithDexScreenerBaseURL overrides the API endpoint. Used by tests.
func WithDexScreenerBaseURL(url string) DexScreenerOption {
	return func(c *DexScreenerClient) { c.baseURL = url }
}

// WithDexScreenerHTTPClient overrides the HTTP client.
func WithDexScreenerHTTPClient(hc *http.Client) DexScreenerOption {
	return func(c *DexScreenerClient) { c.httpClient = hc }
}

// WithDexScreenerRetry overrides retry behavior.
func WithDexScreenerRetry(opts ratelimit.ExecuteOptions) DexScreenerOption {
	return func(c *DexScreenerClient) { c.retry = opts }
}

// NewDexScreenerClient creates a client.
func NewDexScreenerClient(limiter *ratelimit.Limiter, opts ...DexScreenerOption) *DexScreenerClient {
	c := &DexScreenerClient{
		baseURL:    DefaultDexScreenerBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrNoPairs reports a token with no listed pairs yet.
var ErrNoPairs = fmt.Errorf("no pairs listed")

// GetBestPair returns the most liquid pair for a mint.
func (c *DexScreenerClient) GetBestPair(ctx context.Context, mint string) (*PairData, error) {
	resp, err := ratelimit.Execute(ctx, c.limiter, dexScreenerService, func(ctx context.Context) (*dexTokenResponse, error) {
		return c.fetchPairs(ctx, mint)
	}, c.retry)
	if err != nil {
		return nil, err
	}

	var best *dexPair
	for i := range resp.Pairs {
		p := &resp.Pairs[i]
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("pairs for %s: %w", mint, ErrNoPairs)
	}

	price, _ := strconv.ParseFloat(best.PriceUSD, 64)
	return &PairData{
		PairAddress:  best.PairAddress,
		Name:         best.BaseToken.Name,
		Symbol:       best.BaseToken.Symbol,
		PriceUSD:     price,
		MarketCapUSD: best.FDV,
		LiquidityUSD: best.Liquidity.USD,
		Volume24hUSD: best.Volume.H24,
		BuysH1:       best.Txns.H1.Buys,
		SellsH1:      best.Txns.H1.Sells,
		BuysH24:      best.Txns.H24.Buys,
		SellsH24:     best.Txns.H24.Sells,
		CreatedAtMs:  best.PairCreatedAt,
	}, nil
}

func (c *DexScreenerClient) fetchPairs(ctx context.Context, mint string) (*dexTokenResponse, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pairs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &ratelimit.HTTPStatusError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				statusErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, statusErr
	}

	var parsed dexTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	return &parsed, nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// DexScreener wire types. PriceUSD arrives as a string.

type dexTokenResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string  `json:"priceUsd"`
	FDV       float64 `json:"fdv"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Txns struct {
		H1  dexTxnCounts `json:"h1"`
		H24 dexTxnCounts `json:"h24"`
	} `json:"txns"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

type dexTxnCounts struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}
