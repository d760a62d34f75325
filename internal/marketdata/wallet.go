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
)

var satsPerBTC = decimal.NewFromInt(100_000_000)

// WalletClient fetches the confirmed balance of a watched on-chain address
// from a Blockstream-style esplora API. The balance is funded minus spent
// outputs; this service only ever reads, it never holds keys.
type WalletClient struct {
	baseURL string
	httpc   *http.Client
	cache   *gocache.Cache
}

// NewWalletClient creates a wallet balance client.
func NewWalletClient(baseURL string, ttl time.Duration) *WalletClient {
	return &WalletClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		cache:   gocache.New(ttl, 2*ttl),
	}
}

// addressInfo mirrors /address/{addr}.
type addressInfo struct {
	ChainStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
	} `json:"chain_stats"`
}

// Balance returns the confirmed BTC balance of the address.
func (c *WalletClient) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if cached, ok := c.cache.Get("balance:" + address); ok {
		return cached.(decimal.Decimal), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/address/"+address, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("marketdata: wallet fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("marketdata: wallet API returned %d", resp.StatusCode)
	}

	var info addressInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return decimal.Decimal{}, fmt.Errorf("marketdata: decode wallet response: %w", err)
	}

	sats := info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum
	balance := decimal.NewFromInt(sats).Div(satsPerBTC)

	c.cache.SetDefault("balance:"+address, balance)
	return balance, nil
}
