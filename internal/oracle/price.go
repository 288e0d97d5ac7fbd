package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PriceConfig holds connection parameters for the spot price API.
type PriceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PriceClient is the REST client for a CoinGecko-compatible price API, used
// to enrich finance questions with the current spot price before the oracle
// call.
type PriceClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewPriceClient creates a new price API client.
func NewPriceClient(cfg PriceConfig) *PriceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PriceClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SpotPriceUSD returns the current USD price for a coin ID (e.g. "bitcoin").
func (p *PriceClient) SpotPriceUSD(ctx context.Context, coinID string) (float64, error) {
	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/simple/price?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: build price request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle: price request %s: %w", coinID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("oracle: read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle: price status %d for %s", resp.StatusCode, coinID)
	}

	var out map[string]map[string]float64
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("oracle: decode price response: %w", err)
	}

	usd, ok := out[coinID]["usd"]
	if !ok {
		return 0, fmt.Errorf("oracle: no usd price for %s", coinID)
	}
	return usd, nil
}

// knownAssets maps question keywords to price API coin IDs. Matching is
// deliberately conservative: a miss only skips price enrichment.
var knownAssets = []struct {
	keyword string
	coinID  string
	label   string
}{
	{"bitcoin", "bitcoin", "BTC"},
	{"btc", "bitcoin", "BTC"},
	{"ethereum", "ethereum", "ETH"},
	{"eth", "ethereum", "ETH"},
	{"bnb", "binancecoin", "BNB"},
	{"solana", "solana", "SOL"},
	{"sol", "solana", "SOL"},
}

// detectAsset scans a market question for a known crypto asset and returns
// its coin ID and display label, or false when none matches.
func detectAsset(question string) (coinID, label string, ok bool) {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, w := range words {
		for _, a := range knownAssets {
			if w == a.keyword {
				return a.coinID, a.label, true
			}
		}
	}
	return "", "", false
}
