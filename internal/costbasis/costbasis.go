// Package costbasis aggregates purchase records into an adjusted-cost-basis
// position and marks it to market.
//
// Both operations are pure functions of their inputs: the position is
// re-derived from the full purchase sequence on every call rather than
// mutated incrementally, so there is no drift from partial updates and no
// shared state to lock.
package costbasis

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

var (
	// ErrInvalidMarketPrice is returned when a snapshot quotes a
	// non-positive price. A valuation against a bad price is worse than
	// no valuation.
	ErrInvalidMarketPrice = errors.New("costbasis: market price must be positive")

	// ErrMissingCurrencyQuote is returned when the snapshot has no quote
	// for the requested currency. Only that currency's computation fails.
	ErrMissingCurrencyQuote = errors.New("costbasis: no quote for requested currency")
)

// ComputePosition derives the aggregate position from a purchase sequence.
// Sums are exact decimal arithmetic with no rounding; order of the input
// does not affect the result. An empty sequence yields an empty position,
// which is valid; its average cost is simply undefined.
func ComputePosition(purchases []model.Purchase) model.Position {
	qty := decimal.Zero
	cost := decimal.Zero
	for _, p := range purchases {
		qty = qty.Add(p.QuantityBTC)
		cost = cost.Add(p.CostFiat)
	}
	return model.Position{
		TotalQuantityBTC: qty,
		TotalCostFiat:    cost,
		PurchaseCount:    len(purchases),
	}
}

// ComputeValuation marks a position to the snapshot's quote for currency.
//
//	fair market value = total quantity × price
//	unrealized g/l   = fair market value − total cost
//
// Fails with ErrMissingCurrencyQuote when the currency is absent and
// ErrInvalidMarketPrice when the quote is non-positive; it never falls
// back to a default price.
func ComputeValuation(pos model.Position, snap model.MarketSnapshot, currency string) (model.Valuation, error) {
	price, ok := snap.Price(currency)
	if !ok {
		return model.Valuation{}, fmt.Errorf("%w: %s", ErrMissingCurrencyQuote, currency)
	}
	if !price.IsPositive() {
		return model.Valuation{}, fmt.Errorf("%w: %s=%s", ErrInvalidMarketPrice, currency, price)
	}

	fmv := pos.TotalQuantityBTC.Mul(price)
	return model.Valuation{
		Currency:           currency,
		PricePerBTC:        price,
		FairMarketValue:    fmv,
		UnrealizedGainLoss: fmv.Sub(pos.TotalCostFiat),
		ObservedAt:         snap.ObservedAt,
	}, nil
}
