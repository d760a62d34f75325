package normalizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

var btcBuys = Filter{Asset: "BTC", TxType: "Buy"}

const shakepayHeader = "Date,Type,Asset Credited,Amount Credited,Book Cost\n"

func normalize(t *testing.T, csv string) Result {
	t.Helper()
	res, err := Normalize(strings.NewReader(csv), btcBuys, "test.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func TestNormalize_ValidRows(t *testing.T) {
	res := normalize(t, shakepayHeader+
		"2024-01-15 10:30:00,Buy,BTC,0.01,600\n"+
		"2024-02-20 09:00:00,Buy,BTC,0.02,1300\n")

	if len(res.Purchases) != 2 {
		t.Fatalf("expected 2 purchases, got %d", len(res.Purchases))
	}
	if res.Dropped != 0 {
		t.Errorf("expected no drops, got %d", res.Dropped)
	}

	p := res.Purchases[0]
	if !p.QuantityBTC.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("expected quantity 0.01, got %s", p.QuantityBTC)
	}
	if !p.CostFiat.Equal(decimal.RequireFromString("600")) {
		t.Errorf("expected cost 600, got %s", p.CostFiat)
	}
	if !p.UnitPriceFiat.Equal(decimal.RequireFromString("60000")) {
		t.Errorf("expected unit price 60000, got %s", p.UnitPriceFiat)
	}
	if p.ID == "" {
		t.Error("expected a generated purchase ID")
	}
	if p.SourceFile != "test.csv" {
		t.Errorf("expected source file test.csv, got %q", p.SourceFile)
	}
}

func TestNormalize_SortsByTimestamp(t *testing.T) {
	res := normalize(t, shakepayHeader+
		"2024-02-20 09:00:00,Buy,BTC,0.02,1300\n"+
		"2024-01-15 10:30:00,Buy,BTC,0.01,600\n")

	if len(res.Purchases) != 2 {
		t.Fatalf("expected 2 purchases, got %d", len(res.Purchases))
	}
	if !res.Purchases[0].Timestamp.Before(res.Purchases[1].Timestamp) {
		t.Error("purchases must be ordered by timestamp ascending")
	}
}

func TestNormalize_FilterMissesAreNotDrops(t *testing.T) {
	res := normalize(t, shakepayHeader+
		"2024-01-15 10:30:00,Buy,BTC,0.01,600\n"+
		"2024-01-16 10:30:00,Sell,BTC,0.01,700\n"+
		"2024-01-17 10:30:00,Buy,ETH,1.5,4000\n")

	if len(res.Purchases) != 1 {
		t.Fatalf("expected 1 purchase, got %d", len(res.Purchases))
	}
	if res.Dropped != 0 {
		t.Errorf("sell and non-BTC rows are filtered, not dropped; got %d drops", res.Dropped)
	}
	if res.Total != 3 {
		t.Errorf("expected 3 rows read, got %d", res.Total)
	}
}

func TestNormalize_DropsInvalidRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"bad date", "not-a-date,Buy,BTC,0.01,600\n"},
		{"missing date", ",Buy,BTC,0.01,600\n"},
		{"zero quantity", "2024-01-15 10:30:00,Buy,BTC,0,600\n"},
		{"negative quantity", "2024-01-15 10:30:00,Buy,BTC,-0.01,600\n"},
		{"garbage quantity", "2024-01-15 10:30:00,Buy,BTC,abc,600\n"},
		{"negative cost", "2024-01-15 10:30:00,Buy,BTC,0.01,-600\n"},
		{"garbage cost", "2024-01-15 10:30:00,Buy,BTC,0.01,xyz\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := normalize(t, shakepayHeader+tt.row+
				"2024-02-20 09:00:00,Buy,BTC,0.02,1300\n")

			if res.Dropped != 1 {
				t.Errorf("expected 1 drop, got %d", res.Dropped)
			}
			if len(res.Purchases) != 1 {
				t.Errorf("rest of the batch must survive, got %d purchases", len(res.Purchases))
			}
		})
	}
}

func TestNormalize_ZeroCostIsValid(t *testing.T) {
	// A promotional credit has a genuine zero book cost.
	res := normalize(t, shakepayHeader+"2024-01-15 10:30:00,Buy,BTC,0.001,0\n")

	if len(res.Purchases) != 1 || res.Dropped != 0 {
		t.Fatalf("zero cost must be accepted: %+v", res)
	}
	if !res.Purchases[0].CostFiat.IsZero() {
		t.Errorf("expected zero cost, got %s", res.Purchases[0].CostFiat)
	}
}

func TestNormalize_ThousandsSeparatorsAndCurrencySigns(t *testing.T) {
	res := normalize(t, shakepayHeader+`2024-01-15 10:30:00,Buy,BTC,0.05,"$3,100.50"`+"\n")

	if len(res.Purchases) != 1 {
		t.Fatalf("expected 1 purchase, got %d (dropped %d)", len(res.Purchases), res.Dropped)
	}
	if !res.Purchases[0].CostFiat.Equal(decimal.RequireFromString("3100.50")) {
		t.Errorf("expected cost 3100.50, got %s", res.Purchases[0].CostFiat)
	}
}

func TestNormalize_MixedDateLayouts(t *testing.T) {
	res := normalize(t, shakepayHeader+
		"2024-01-15T10:30:00Z,Buy,BTC,0.01,600\n"+
		"2024-02-20,Buy,BTC,0.02,1300\n")

	if len(res.Purchases) != 2 {
		t.Fatalf("expected both layouts to parse, got %d (dropped %d)", len(res.Purchases), res.Dropped)
	}
}

func TestNormalize_EmptyResultIsValid(t *testing.T) {
	res := normalize(t, shakepayHeader)

	if len(res.Purchases) != 0 || res.Dropped != 0 {
		t.Errorf("empty filtered result is valid: %+v", res)
	}
}

func TestNormalize_MissingHeader(t *testing.T) {
	_, err := Normalize(strings.NewReader(""), btcBuys, "empty.csv")
	if !errors.Is(err, ErrMissingHeader) {
		t.Errorf("expected ErrMissingHeader, got %v", err)
	}

	_, err = Normalize(strings.NewReader("foo,bar,baz\n1,2,3\n"), btcBuys, "junk.csv")
	if !errors.Is(err, ErrMissingHeader) {
		t.Errorf("unusable columns: expected ErrMissingHeader, got %v", err)
	}
}
