package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

const feeCacheKey = "fee:snapshot"

// Tier names exposed in fee snapshots, ordered fastest first.
const (
	TierPriority = "priority"
	TierStandard = "standard"
	TierEconomy  = "economy"
)

// FeeClient fetches recommended fee rates and the mempool backlog from a
// mempool.space-style API and assembles them into a FeeSnapshot.
type FeeClient struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	cache   *gocache.Cache
}

// NewFeeClient creates a fee client with the given freshness window.
func NewFeeClient(baseURL string, ttl time.Duration) *FeeClient {
	return &FeeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		cache:   gocache.New(ttl, 2*ttl),
	}
}

// recommendedFees mirrors /v1/fees/recommended.
type recommendedFees struct {
	FastestFee  json.Number `json:"fastestFee"`
	HalfHourFee json.Number `json:"halfHourFee"`
	HourFee     json.Number `json:"hourFee"`
}

// mempoolInfo mirrors /mempool.
type mempoolInfo struct {
	Count int64 `json:"count"`
	VSize int64 `json:"vsize"`
}

// Snapshot returns the current fee snapshot: three ordered tiers with
// nominal confirmation targets plus the mempool vsize as the congestion
// indicator. Served from cache inside the freshness window.
func (c *FeeClient) Snapshot(ctx context.Context) (model.FeeSnapshot, error) {
	if cached, ok := c.cache.Get(feeCacheKey); ok {
		return cached.(model.FeeSnapshot), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return model.FeeSnapshot{}, err
	}

	var fees recommendedFees
	if err := c.getJSON(ctx, c.baseURL+"/v1/fees/recommended", &fees); err != nil {
		return model.FeeSnapshot{}, err
	}

	var mp mempoolInfo
	if err := c.getJSON(ctx, c.baseURL+"/mempool", &mp); err != nil {
		return model.FeeSnapshot{}, err
	}

	tiers := make([]model.FeeTier, 0, 3)
	for _, t := range []struct {
		name   string
		rate   json.Number
		blocks int
	}{
		{TierPriority, fees.FastestFee, 1},
		{TierStandard, fees.HalfHourFee, 3},
		{TierEconomy, fees.HourFee, 6},
	} {
		r, err := decimal.NewFromString(t.rate.String())
		if err != nil || !r.IsPositive() {
			continue
		}
		tiers = append(tiers, model.FeeTier{Name: t.name, SatPerVByte: r, TargetBlocks: t.blocks})
	}
	if len(tiers) < 2 {
		return model.FeeSnapshot{}, fmt.Errorf("marketdata: fee feed exposed %d usable tiers, need 2", len(tiers))
	}

	snap := model.FeeSnapshot{
		Tiers:         tiers,
		PendingVBytes: mp.VSize,
		ObservedAt:    time.Now().UTC(),
	}
	c.cache.SetDefault(feeCacheKey, snap)
	return snap, nil
}

func (c *FeeClient) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("marketdata: fee fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("marketdata: fee API returned %d for %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
