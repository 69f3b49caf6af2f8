package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smatrader/internal/circuit"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com"
	defaultHTTPTimeout  = 10 * time.Second
)

// CoinGeckoConfig configures the CoinGecko simple-price source.
type CoinGeckoConfig struct {
	BaseURL    string // default: https://api.coingecko.com
	CoinID     string // e.g. "bitcoin"
	VsCurrency string // e.g. "usd"
	Timeout    time.Duration
}

func (c *CoinGeckoConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultCoinGeckoURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.CoinID == "" {
		c.CoinID = "bitcoin"
	}
	if c.VsCurrency == "" {
		c.VsCurrency = "usd"
	}
	if c.Timeout == 0 {
		c.Timeout = defaultHTTPTimeout
	}
}

// CoinGecko polls /api/v3/simple/price.
type CoinGecko struct {
	cfg     CoinGeckoConfig
	client  *http.Client
	breaker *circuit.Breaker
}

// NewCoinGecko creates the source. breaker may be nil.
func NewCoinGecko(cfg CoinGeckoConfig, breaker *circuit.Breaker) *CoinGecko {
	cfg.defaults()
	return &CoinGecko{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// FetchPrice returns the current price of CoinID in VsCurrency.
func (c *CoinGecko) FetchPrice(ctx context.Context) (float64, error) {
	if c.breaker == nil {
		return c.fetch(ctx)
	}
	var price float64
	err := c.breaker.Execute(func() error {
		p, err := c.fetch(ctx)
		price = p
		return err
	})
	return price, err
}

func (c *CoinGecko) fetch(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("ids", c.cfg.CoinID)
	q.Set("vs_currencies", c.cfg.VsCurrency)
	endpoint := c.cfg.BaseURL + "/api/v3/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko: API error: %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("coingecko: decode: %w", err)
	}
	price, ok := body[c.cfg.CoinID][c.cfg.VsCurrency]
	if !ok {
		return 0, fmt.Errorf("coingecko: no %s/%s price in response", c.cfg.CoinID, c.cfg.VsCurrency)
	}
	return price, nil
}
