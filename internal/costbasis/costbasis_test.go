package costbasis

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

// d is a test helper for creating decimals from strings, so fixtures stay
// exact.
func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func purchase(qty, cost string) model.Purchase {
	return model.Purchase{
		QuantityBTC: d(qty),
		CostFiat:    d(cost),
	}
}

func snapshot(currency, price string) model.MarketSnapshot {
	return model.MarketSnapshot{
		Prices:     map[string]decimal.Decimal{currency: d(price)},
		ObservedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- ComputePosition ---

func TestComputePosition_SumsExactly(t *testing.T) {
	pos := ComputePosition([]model.Purchase{
		purchase("0.01", "600"),
		purchase("0.02", "1300"),
	})

	if !pos.TotalQuantityBTC.Equal(d("0.03")) {
		t.Errorf("expected total quantity 0.03, got %s", pos.TotalQuantityBTC)
	}
	if !pos.TotalCostFiat.Equal(d("1900")) {
		t.Errorf("expected total cost 1900, got %s", pos.TotalCostFiat)
	}
	if pos.PurchaseCount != 2 {
		t.Errorf("expected 2 purchases, got %d", pos.PurchaseCount)
	}
}

func TestComputePosition_OrderIndependent(t *testing.T) {
	a := []model.Purchase{purchase("0.01", "600"), purchase("0.02", "1300"), purchase("0.005", "333.33")}
	b := []model.Purchase{a[2], a[0], a[1]}

	posA := ComputePosition(a)
	posB := ComputePosition(b)

	if !posA.TotalQuantityBTC.Equal(posB.TotalQuantityBTC) || !posA.TotalCostFiat.Equal(posB.TotalCostFiat) {
		t.Errorf("position depends on input order: %+v vs %+v", posA, posB)
	}
}

func TestComputePosition_Idempotent(t *testing.T) {
	in := []model.Purchase{purchase("0.01", "600"), purchase("0.02", "1300")}

	first := ComputePosition(in)
	second := ComputePosition(in)

	if !first.TotalQuantityBTC.Equal(second.TotalQuantityBTC) ||
		!first.TotalCostFiat.Equal(second.TotalCostFiat) ||
		first.PurchaseCount != second.PurchaseCount {
		t.Errorf("ComputePosition not idempotent: %+v vs %+v", first, second)
	}
}

func TestComputePosition_Empty(t *testing.T) {
	pos := ComputePosition(nil)

	if !pos.TotalQuantityBTC.IsZero() || !pos.TotalCostFiat.IsZero() {
		t.Errorf("empty sequence should yield zero totals, got %+v", pos)
	}
	if _, ok := pos.AverageCost(); ok {
		t.Error("average cost must be undefined for an empty position, not zero")
	}
}

func TestAverageCost_Defined(t *testing.T) {
	pos := ComputePosition([]model.Purchase{
		purchase("0.01", "600"),
		purchase("0.02", "1300"),
	})

	avg, ok := pos.AverageCost()
	if !ok {
		t.Fatal("expected a defined average cost")
	}
	// 1900 / 0.03 = 63333.33...
	want := d("1900").Div(d("0.03"))
	if !avg.Equal(want) {
		t.Errorf("expected average cost %s, got %s", want, avg)
	}
	if avg.Round(2).String() != "63333.33" {
		t.Errorf("expected rounded average 63333.33, got %s", avg.Round(2))
	}
}

// --- ComputeValuation ---

func TestComputeValuation_EndToEnd(t *testing.T) {
	pos := ComputePosition([]model.Purchase{
		purchase("0.01", "600"),
		purchase("0.02", "1300"),
	})

	val, err := ComputeValuation(pos, snapshot("CAD", "80000"), "CAD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !val.FairMarketValue.Equal(d("2400")) {
		t.Errorf("expected FMV 2400, got %s", val.FairMarketValue)
	}
	if !val.UnrealizedGainLoss.Equal(d("500")) {
		t.Errorf("expected unrealized gain 500, got %s", val.UnrealizedGainLoss)
	}
}

func TestComputeValuation_Loss(t *testing.T) {
	pos := ComputePosition([]model.Purchase{purchase("0.03", "3000")})

	val, err := ComputeValuation(pos, snapshot("CAD", "80000"), "CAD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !val.UnrealizedGainLoss.Equal(d("-600")) {
		t.Errorf("expected unrealized loss -600, got %s", val.UnrealizedGainLoss)
	}
}

func TestComputeValuation_NonPositivePrice(t *testing.T) {
	pos := ComputePosition([]model.Purchase{purchase("0.01", "600")})

	for _, price := range []string{"0", "-1"} {
		_, err := ComputeValuation(pos, snapshot("CAD", price), "CAD")
		if !errors.Is(err, ErrInvalidMarketPrice) {
			t.Errorf("price %s: expected ErrInvalidMarketPrice, got %v", price, err)
		}
	}
}

func TestComputeValuation_MissingCurrency(t *testing.T) {
	pos := ComputePosition([]model.Purchase{purchase("0.01", "600")})

	_, err := ComputeValuation(pos, snapshot("CAD", "80000"), "EUR")
	if !errors.Is(err, ErrMissingCurrencyQuote) {
		t.Errorf("expected ErrMissingCurrencyQuote, got %v", err)
	}
}

func TestComputeValuation_EmptyPosition(t *testing.T) {
	val, err := ComputeValuation(ComputePosition(nil), snapshot("CAD", "80000"), "CAD")
	if err != nil {
		t.Fatalf("empty position must value cleanly, got %v", err)
	}
	if !val.FairMarketValue.IsZero() || !val.UnrealizedGainLoss.IsZero() {
		t.Errorf("empty position should value to zero, got %+v", val)
	}
}
