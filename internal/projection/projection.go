// Package projection estimates accumulated BTC from a recurring fiat
// contribution schedule. It assumes a constant price over the horizon,
// with no price-path modeling or variance.
package projection

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidMarketPrice is returned for a non-positive price.
	ErrInvalidMarketPrice = errors.New("projection: price must be positive")

	// ErrNegativePeriods is returned for a negative period count.
	// Zero periods is a valid boundary and yields zero.
	ErrNegativePeriods = errors.New("projection: periods must be >= 0")
)

// Project returns the BTC quantity accumulated by contributing
// contribution fiat per period for the given number of periods at a
// constant price:
//
//	projected = (contribution × periods) / price
func Project(contribution decimal.Decimal, periods int, pricePerBTC decimal.Decimal) (decimal.Decimal, error) {
	if periods < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %d", ErrNegativePeriods, periods)
	}
	if !pricePerBTC.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidMarketPrice, pricePerBTC)
	}
	if periods == 0 {
		return decimal.Zero, nil
	}
	return contribution.Mul(decimal.NewFromInt(int64(periods))).Div(pricePerBTC), nil
}
