// Package tax projects Canadian-style capital-gains figures from a valued
// position. Everything here is an unrealized, informational projection:
// capital gains tax is triggered only on disposition, and this package
// computes no disposition events.
package tax

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

// ErrInvalidInclusionRate is returned for rates outside (0, 1].
var ErrInvalidInclusionRate = errors.New("tax: inclusion rate must be in (0, 1]")

var one = decimal.NewFromInt(1)

// Summarize applies the inclusion-rate rule to a valuation.
//
// A positive unrealized gain is taxable at gain × inclusionRate. A loss is
// reported in full: the inclusion rate applies only to gains, and halving
// a loss would understate it. The rate is an explicit argument, not a
// hard-coded jurisdiction constant; the caller's config owns the default.
func Summarize(pos model.Position, val model.Valuation, inclusionRate decimal.Decimal) (model.TaxReport, error) {
	if !inclusionRate.IsPositive() || inclusionRate.GreaterThan(one) {
		return model.TaxReport{}, fmt.Errorf("%w: %s", ErrInvalidInclusionRate, inclusionRate)
	}

	report := model.TaxReport{
		Currency:           val.Currency,
		TaxYear:            time.Now().UTC().Year(),
		CostBasisTotal:     pos.TotalCostFiat,
		FairMarketValue:    val.FairMarketValue,
		UnrealizedGainLoss: val.UnrealizedGainLoss,
		CapitalLoss:        decimal.Zero,
		TaxableAmount:      decimal.Zero,
		InclusionRate:      inclusionRate,
		Status:             model.ReportStatusUnrealized,
	}

	if val.UnrealizedGainLoss.IsPositive() {
		report.TaxableAmount = val.UnrealizedGainLoss.Mul(inclusionRate)
	} else {
		report.CapitalLoss = val.UnrealizedGainLoss.Abs()
	}
	return report, nil
}

// RenderText produces the downloadable tax summary. The rendering is
// deterministic and traces every number to the structured report fields:
// no recomputation, no alternate rounding paths.
func RenderText(report model.TaxReport, pos model.Position) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Bitcoin Tax Summary - %d (%s)\n", report.TaxYear, report.Status)
	fmt.Fprintf(&b, "Currency: %s\n\n", report.Currency)

	fmt.Fprintf(&b, "Total BTC held:        %s\n", pos.TotalQuantityBTC.String())
	fmt.Fprintf(&b, "Cost basis (ACB):      %s\n", report.CostBasisTotal.StringFixed(2))
	if avg, ok := pos.AverageCost(); ok {
		fmt.Fprintf(&b, "Average cost per BTC:  %s\n", avg.StringFixed(2))
	} else {
		fmt.Fprintf(&b, "Average cost per BTC:  n/a (no purchases)\n")
	}
	fmt.Fprintf(&b, "Fair market value:     %s\n\n", report.FairMarketValue.StringFixed(2))

	if report.UnrealizedGainLoss.IsPositive() {
		fmt.Fprintf(&b, "Unrealized capital gain: %s\n", report.UnrealizedGainLoss.StringFixed(2))
		fmt.Fprintf(&b, "Taxable amount (%s inclusion): %s\n",
			report.InclusionRate.String(), report.TaxableAmount.StringFixed(2))
	} else {
		fmt.Fprintf(&b, "Unrealized capital loss: %s\n", report.CapitalLoss.StringFixed(2))
		fmt.Fprintf(&b, "Losses are reported in full; the inclusion rate applies only to gains.\n")
	}

	b.WriteString("\nThese figures are unrealized projections, not filed amounts.\n")
	b.WriteString("Consult a tax professional for official tax advice.\n")
	return b.String()
}
