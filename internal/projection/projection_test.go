package projection

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestProject_AccumulatesAtConstantPrice(t *testing.T) {
	// $100/week for 52 weeks at $80,000/BTC -> 5200/80000 = 0.065 BTC.
	got, err := Project(d("100"), 52, d("80000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d("0.065")) {
		t.Errorf("expected 0.065 BTC, got %s", got)
	}
}

func TestProject_ZeroPeriods(t *testing.T) {
	tests := []struct {
		contribution string
		price        string
	}{
		{"100", "80000"},
		{"0", "80000"},
		{"999999", "1"},
	}
	for _, tt := range tests {
		got, err := Project(d(tt.contribution), 0, d(tt.price))
		if err != nil {
			t.Fatalf("zero periods is a valid boundary, got error: %v", err)
		}
		if !got.IsZero() {
			t.Errorf("contribution=%s price=%s: expected 0, got %s", tt.contribution, tt.price, got)
		}
	}
}

func TestProject_NegativePeriods(t *testing.T) {
	_, err := Project(d("100"), -1, d("80000"))
	if !errors.Is(err, ErrNegativePeriods) {
		t.Errorf("expected ErrNegativePeriods, got %v", err)
	}
}

func TestProject_NonPositivePrice(t *testing.T) {
	for _, price := range []string{"0", "-80000"} {
		_, err := Project(d("100"), 52, d(price))
		if !errors.Is(err, ErrInvalidMarketPrice) {
			t.Errorf("price %s: expected ErrInvalidMarketPrice, got %v", price, err)
		}
	}
}
