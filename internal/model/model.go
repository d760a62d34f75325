// Package model defines the core domain types shared across the portfolio
// engine. All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is an immutable record of one exchange buy event. Once imported,
// these are never modified; the position is always re-derived from the full
// sequence.
type Purchase struct {
	ID            string          `json:"id" db:"id"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
	QuantityBTC   decimal.Decimal `json:"quantity_btc" db:"quantity_btc"`       // > 0, validated at import
	CostFiat      decimal.Decimal `json:"cost_fiat" db:"cost_fiat"`             // total book cost, >= 0
	UnitPriceFiat decimal.Decimal `json:"unit_price_fiat" db:"unit_price_fiat"` // cost_fiat / quantity_btc, derived
	SourceFile    string          `json:"source_file,omitempty" db:"source_file"`
}

// Position is the aggregate state derived from a sequence of Purchases.
// It carries exact, unrounded sums; callers round only for presentation.
//
// The average cost basis is deliberately not a field: when no BTC is held
// it is undefined, and a zero would be misleading. Use AverageCost.
type Position struct {
	TotalQuantityBTC decimal.Decimal `json:"total_quantity_btc"`
	TotalCostFiat    decimal.Decimal `json:"total_cost_fiat"`
	PurchaseCount    int             `json:"purchase_count"`
}

// AverageCost returns the adjusted cost basis per BTC. ok is false when the
// position holds no quantity; callers must branch on it rather than treat
// the basis as zero.
func (p Position) AverageCost() (decimal.Decimal, bool) {
	if !p.TotalQuantityBTC.IsPositive() {
		return decimal.Decimal{}, false
	}
	return p.TotalCostFiat.Div(p.TotalQuantityBTC), true
}

// MarketSnapshot is a time-stamped price fact supplied by an external
// provider. The engine never fetches or caches prices itself; freshness
// policy belongs to the provider.
type MarketSnapshot struct {
	Prices     map[string]decimal.Decimal `json:"prices"` // currency code -> fiat per BTC
	ObservedAt time.Time                  `json:"observed_at"`
}

// Price returns the quote for a currency code. The snapshot stores codes
// upper-cased; normalizing caller input is the provider's concern.
func (s MarketSnapshot) Price(currency string) (decimal.Decimal, bool) {
	p, ok := s.Prices[currency]
	return p, ok
}

// Valuation is a position marked to a market snapshot.
type Valuation struct {
	Currency           string          `json:"currency"`
	PricePerBTC        decimal.Decimal `json:"price_per_btc"`
	FairMarketValue    decimal.Decimal `json:"fair_market_value"`
	UnrealizedGainLoss decimal.Decimal `json:"unrealized_gain_loss"` // signed
	ObservedAt         time.Time       `json:"observed_at"`
}

// FeeTier is one named fee-rate option from the network fee feed.
type FeeTier struct {
	Name         string          `json:"name"` // "priority", "standard", "economy"
	SatPerVByte  decimal.Decimal `json:"sat_per_vbyte"`
	TargetBlocks int             `json:"target_blocks"` // nominal confirmation target
}

// FeeSnapshot is the current network fee state, supplied externally.
// Tiers are ordered fastest first. PendingVBytes is the mempool backlog
// used as the congestion indicator.
type FeeSnapshot struct {
	Tiers         []FeeTier `json:"tiers"`
	PendingVBytes int64     `json:"pending_vbytes"`
	ObservedAt    time.Time `json:"observed_at"`
}

// WithdrawalPlan is the output of the fee-aware withdrawal optimizer.
// All amounts are integer satoshis; fee arithmetic never rounds down.
type WithdrawalPlan struct {
	RequestedSats    int64  `json:"requested_sats"`
	EstimatedFeeSats int64  `json:"estimated_fee_sats"`
	NetSats          int64  `json:"net_sats"` // requested - fee, >= 0
	Tier             string `json:"tier"`
	ETA              string `json:"eta"`
}

// TaxReport projects the tax consequence of disposing of the entire
// position at the supplied market price. Figures are unrealized and
// informational only; nothing here is a filed amount.
type TaxReport struct {
	Currency           string          `json:"currency"`
	TaxYear            int             `json:"tax_year"`
	CostBasisTotal     decimal.Decimal `json:"cost_basis_total"`
	FairMarketValue    decimal.Decimal `json:"fair_market_value"`
	UnrealizedGainLoss decimal.Decimal `json:"unrealized_gain_loss"` // signed
	CapitalLoss        decimal.Decimal `json:"capital_loss"`         // |gain| when negative, else 0; never halved
	TaxableAmount      decimal.Decimal `json:"taxable_amount"`       // max(gain, 0) * inclusion rate
	InclusionRate      decimal.Decimal `json:"inclusion_rate"`
	Status             string          `json:"status"` // always ReportStatusUnrealized
}

// ReportStatusUnrealized labels every report this engine produces:
// capital gains tax is triggered only on disposition.
const ReportStatusUnrealized = "unrealized (informational)"
