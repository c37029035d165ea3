package oracle

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// CoinGeckoClient fetches spot prices from the CoinGecko simple-price API.
// It works without an API key at public rate limits; a demo key raises them.
type CoinGeckoClient struct {
	assetID    string
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewCoinGeckoClient creates a client for one asset, e.g. "solana".
func NewCoinGeckoClient(assetID, apiKey string) *CoinGeckoClient {
	return &CoinGeckoClient{
		assetID: assetID,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: "https://api.coingecko.com",
	}
}

// geckoQuote is one asset's entry in a simple-price response:
// {"solana":{"usd":142.35,"last_updated_at":1711356300}}
type geckoQuote struct {
	USD           decimal.Decimal `json:"usd"`
	LastUpdatedAt int64           `json:"last_updated_at"`
}

// FetchQuote returns the asset's current USD price.
func (c *CoinGeckoClient) FetchQuote() (Quote, error) {
	// CoinGecko API: GET /api/v3/simple/price?ids={asset}&vs_currencies=usd
	reqURL := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd&include_last_updated_at=true",
		c.baseURL, url.QueryEscape(c.assetID))
	if c.apiKey != "" {
		reqURL += "&x_cg_demo_api_key=" + url.QueryEscape(c.apiKey)
	}

	resp, err := c.httpClient.Get(reqURL)
	if err != nil {
		return Quote{}, fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var prices map[string]geckoQuote
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return Quote{}, fmt.Errorf("failed to decode coingecko response: %w", err)
	}

	entry, ok := prices[c.assetID]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko response missing asset %q", c.assetID)
	}
	if entry.USD.Sign() <= 0 {
		return Quote{}, ErrInvalidQuote
	}

	at := time.Now()
	if entry.LastUpdatedAt > 0 {
		at = time.Unix(entry.LastUpdatedAt, 0)
	}
	return Quote{Price: entry.USD, At: at}, nil
}
