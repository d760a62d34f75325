package tax

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func fixture(gainLoss string) (model.Position, model.Valuation) {
	pos := model.Position{
		TotalQuantityBTC: d("0.03"),
		TotalCostFiat:    d("1900"),
		PurchaseCount:    2,
	}
	val := model.Valuation{
		Currency:           "CAD",
		PricePerBTC:        d("80000"),
		FairMarketValue:    pos.TotalCostFiat.Add(d(gainLoss)),
		UnrealizedGainLoss: d(gainLoss),
	}
	return pos, val
}

func TestSummarize_GainAppliesInclusionRate(t *testing.T) {
	pos, val := fixture("500")

	report, err := Summarize(pos, val, d("0.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.TaxableAmount.Equal(d("250")) {
		t.Errorf("expected taxable 250, got %s", report.TaxableAmount)
	}
	if !report.CapitalLoss.IsZero() {
		t.Errorf("gain report should carry no loss, got %s", report.CapitalLoss)
	}
	if report.Status != model.ReportStatusUnrealized {
		t.Errorf("report must be labeled unrealized, got %q", report.Status)
	}
}

func TestSummarize_LossReportedInFull(t *testing.T) {
	pos, val := fixture("-600")

	report, err := Summarize(pos, val, d("0.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.CapitalLoss.Equal(d("600")) {
		t.Errorf("loss must be reported in full (600), got %s", report.CapitalLoss)
	}
	if !report.TaxableAmount.IsZero() {
		t.Errorf("a loss has no taxable amount, got %s", report.TaxableAmount)
	}
	if !report.UnrealizedGainLoss.Equal(d("-600")) {
		t.Errorf("signed gain/loss must be preserved, got %s", report.UnrealizedGainLoss)
	}
}

func TestSummarize_ZeroGainIsNotTaxable(t *testing.T) {
	pos, val := fixture("0")

	report, err := Summarize(pos, val, d("0.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.TaxableAmount.IsZero() || !report.CapitalLoss.IsZero() {
		t.Errorf("flat position should report zero taxable and zero loss, got %+v", report)
	}
}

func TestSummarize_ConfigurableRate(t *testing.T) {
	pos, val := fixture("500")

	report, err := Summarize(pos, val, d("0.66"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.TaxableAmount.Equal(d("330")) {
		t.Errorf("expected taxable 330 at 0.66 inclusion, got %s", report.TaxableAmount)
	}
}

func TestSummarize_InvalidRate(t *testing.T) {
	pos, val := fixture("500")

	for _, rate := range []string{"0", "-0.5", "1.5"} {
		if _, err := Summarize(pos, val, d(rate)); !errors.Is(err, ErrInvalidInclusionRate) {
			t.Errorf("rate %s: expected ErrInvalidInclusionRate, got %v", rate, err)
		}
	}
}

// --- RenderText ---

func TestRenderText_Deterministic(t *testing.T) {
	pos, val := fixture("500")
	report, _ := Summarize(pos, val, d("0.5"))

	first := RenderText(report, pos)
	second := RenderText(report, pos)
	if first != second {
		t.Error("rendering the same report twice must produce identical text")
	}
}

func TestRenderText_TracesReportFields(t *testing.T) {
	pos, val := fixture("500")
	report, _ := Summarize(pos, val, d("0.5"))

	out := RenderText(report, pos)
	for _, want := range []string{"1900.00", "2400.00", "500.00", "250.00", "0.03"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered summary missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "unrealized") {
		t.Errorf("rendered summary must be labeled unrealized:\n%s", out)
	}
}

func TestRenderText_NoBasis(t *testing.T) {
	pos := model.Position{}
	report, _ := Summarize(pos, model.Valuation{Currency: "CAD"}, d("0.5"))

	out := RenderText(report, pos)
	if !strings.Contains(out, "n/a") {
		t.Errorf("empty position must render an explicit no-basis marker, not 0:\n%s", out)
	}
}
