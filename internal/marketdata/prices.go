// Package marketdata fetches the external facts the engine consumes: spot
// prices, network fee tiers, and on-chain wallet balances.
//
// Staleness policy lives at this boundary: snapshots are TTL-cached and
// rate-limited here, then handed to the engine as immutable values. The
// engine itself never performs network I/O or caching.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

var (
	// ErrNoQuotes is returned when the price API answered but carried no
	// usable bitcoin quotes.
	ErrNoQuotes = errors.New("marketdata: price response contained no quotes")
)

const priceCacheKey = "price:snapshot"

// PriceClient fetches BTC spot prices from a CoinGecko-style simple-price
// endpoint. Responses are cached for the configured TTL and requests are
// rate-limited to stay inside the public API's allowance.
type PriceClient struct {
	baseURL    string
	currencies []string
	httpc      *http.Client
	limiter    *rate.Limiter
	cache      *gocache.Cache
}

// NewPriceClient creates a price client. currencies are the fiat quote
// currencies to request; ttl is the caller-owned freshness window.
func NewPriceClient(baseURL string, currencies []string, ttl time.Duration) *PriceClient {
	return &PriceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		currencies: currencies,
		httpc:      &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), 1),
		cache:      gocache.New(ttl, 2*ttl),
	}
}

// Snapshot returns the current market snapshot, served from cache inside
// the freshness window.
func (c *PriceClient) Snapshot(ctx context.Context) (model.MarketSnapshot, error) {
	if cached, ok := c.cache.Get(priceCacheKey); ok {
		return cached.(model.MarketSnapshot), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return model.MarketSnapshot{}, err
	}

	vs := make([]string, len(c.currencies))
	for i, cur := range c.currencies {
		vs[i] = strings.ToLower(cur)
	}
	url := fmt.Sprintf("%s/simple/price?ids=bitcoin&vs_currencies=%s", c.baseURL, strings.Join(vs, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.MarketSnapshot{}, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("marketdata: price fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.MarketSnapshot{}, fmt.Errorf("marketdata: price API returned %d", resp.StatusCode)
	}

	// {"bitcoin": {"cad": 80123.45, "usd": 59000.12}}
	var raw map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("marketdata: decode price response: %w", err)
	}

	quotes, ok := raw["bitcoin"]
	if !ok || len(quotes) == 0 {
		return model.MarketSnapshot{}, ErrNoQuotes
	}

	snap := model.MarketSnapshot{
		Prices:     make(map[string]decimal.Decimal, len(quotes)),
		ObservedAt: time.Now().UTC(),
	}
	for cur, num := range quotes {
		price, err := decimal.NewFromString(num.String())
		if err != nil {
			continue
		}
		snap.Prices[strings.ToUpper(cur)] = price
	}
	if len(snap.Prices) == 0 {
		return model.MarketSnapshot{}, ErrNoQuotes
	}

	c.cache.SetDefault(priceCacheKey, snap)
	return snap, nil
}
