// Package portfolio provides the HTTP handlers that wire the accounting
// engine to its callers: CSV import, position and tax queries, withdrawal
// planning, and projections.
//
// The handlers are thin: they fetch snapshots from the injected providers,
// hand immutable values to the pure engine packages, and serialize the
// results. No accounting logic lives here.
package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/btcfolio/portfolio-engine/internal/costbasis"
	"github.com/btcfolio/portfolio-engine/internal/metrics"
	"github.com/btcfolio/portfolio-engine/internal/model"
	"github.com/btcfolio/portfolio-engine/internal/normalizer"
	"github.com/btcfolio/portfolio-engine/internal/projection"
	"github.com/btcfolio/portfolio-engine/internal/store"
	"github.com/btcfolio/portfolio-engine/internal/tax"
	"github.com/btcfolio/portfolio-engine/internal/withdraw"
)

// maxImportBytes caps CSV upload size.
const maxImportBytes = 10 << 20

// MarketProvider supplies market snapshots. Implemented by
// marketdata.PriceClient; tests use stubs.
type MarketProvider interface {
	Snapshot(ctx context.Context) (model.MarketSnapshot, error)
}

// FeeProvider supplies network fee snapshots. Implemented by
// marketdata.FeeClient.
type FeeProvider interface {
	Snapshot(ctx context.Context) (model.FeeSnapshot, error)
}

// WalletProvider supplies on-chain balances for a watched address.
// Implemented by marketdata.WalletClient.
type WalletProvider interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
}

// Service handles portfolio API requests.
type Service struct {
	store   store.Store
	prices  MarketProvider
	fees    FeeProvider
	wallet  WalletProvider // nil when no watched address is configured
	planner *withdraw.Planner

	walletAddress   string
	defaultCurrency string
	inclusionRate   decimal.Decimal
	defaultTxVBytes int64
	importFilter    normalizer.Filter
}

// Options configures a Service.
type Options struct {
	Store           store.Store
	Prices          MarketProvider
	Fees            FeeProvider
	Wallet          WalletProvider
	Planner         *withdraw.Planner
	WalletAddress   string
	DefaultCurrency string
	InclusionRate   decimal.Decimal
	DefaultTxVBytes int64
}

// NewService creates the portfolio service.
func NewService(opts Options) *Service {
	return &Service{
		store:           opts.Store,
		prices:          opts.Prices,
		fees:            opts.Fees,
		wallet:          opts.Wallet,
		planner:         opts.Planner,
		walletAddress:   opts.WalletAddress,
		defaultCurrency: opts.DefaultCurrency,
		inclusionRate:   opts.InclusionRate,
		defaultTxVBytes: opts.DefaultTxVBytes,
		importFilter:    normalizer.Filter{Asset: "BTC", TxType: "Buy"},
	}
}

// --- Request/Response types ---

// ImportResponse reports the outcome of a CSV import. Dropped is always
// surfaced so a lossy export is visible to the caller.
type ImportResponse struct {
	Imported int `json:"imported"`
	Dropped  int `json:"dropped"`
	Rows     int `json:"rows"`
}

// PortfolioResponse is the combined position + valuation view.
type PortfolioResponse struct {
	Position    model.Position   `json:"position"`
	AverageCost *decimal.Decimal `json:"average_cost,omitempty"` // null when no basis exists
	Valuation   model.Valuation  `json:"valuation"`
	Wallet      *WalletValuation `json:"wallet,omitempty"`
}

// WalletValuation values the watched on-chain balance against the exchange
// cost basis.
type WalletValuation struct {
	Address    string           `json:"address"`
	BalanceBTC decimal.Decimal  `json:"balance_btc"`
	Value      decimal.Decimal  `json:"value"`
	PnL        decimal.Decimal  `json:"pnl"`                   // value - exchange cost basis
	PnLPercent *decimal.Decimal `json:"pnl_percent,omitempty"` // null when cost basis is zero
}

// PlanRequest is the JSON body for POST /withdrawals/plan.
type PlanRequest struct {
	AmountSats      int64 `json:"amount_sats"`
	TxVBytes        int64 `json:"tx_vbytes,omitempty"`         // 0 -> configured default
	MaxTargetBlocks int   `json:"max_target_blocks,omitempty"` // 0 -> cheapest tier
}

// --- HTTP Handlers ---

// ImportPurchases handles POST /api/v1/purchases/import. The body is the
// raw CSV export; valid BTC buy rows replace the current ledger.
func (s *Service) ImportPurchases(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	defer body.Close()

	res, err := normalizer.Normalize(body, s.importFilter, r.URL.Query().Get("filename"))
	if err != nil {
		metrics.ImportsTotal.WithLabelValues("rejected").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.ReplaceAll(r.Context(), res.Purchases); err != nil {
		metrics.ImportsTotal.WithLabelValues("error").Inc()
		writeError(w, "failed to store purchases", http.StatusInternalServerError)
		return
	}

	metrics.ImportsTotal.WithLabelValues("ok").Inc()
	metrics.RecordsDropped.Add(float64(res.Dropped))
	metrics.PurchasesImported.Add(float64(len(res.Purchases)))

	slog.Info("purchases imported",
		"imported", len(res.Purchases),
		"dropped", res.Dropped,
		"rows", res.Total,
	)

	writeJSON(w, http.StatusOK, ImportResponse{
		Imported: len(res.Purchases),
		Dropped:  res.Dropped,
		Rows:     res.Total,
	})
}

// ListPurchases handles GET /api/v1/purchases.
func (s *Service) ListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := s.store.ListPurchases(r.Context())
	if err != nil {
		writeError(w, "failed to load purchases", http.StatusInternalServerError)
		return
	}
	if purchases == nil {
		purchases = []model.Purchase{}
	}
	writeJSON(w, http.StatusOK, purchases)
}

// GetPortfolio handles GET /api/v1/portfolio?currency=CAD.
// Returns the position, its valuation, and (when a wallet address is
// watched) the on-chain balance valued against the exchange cost basis.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	currency := s.currencyParam(r)

	purchases, err := s.store.ListPurchases(ctx)
	if err != nil {
		writeError(w, "failed to load purchases", http.StatusInternalServerError)
		return
	}
	pos := costbasis.ComputePosition(purchases)

	snap, err := s.prices.Snapshot(ctx)
	if err != nil {
		metrics.SnapshotFetchErrors.WithLabelValues("price").Inc()
		writeError(w, "market data unavailable", http.StatusBadGateway)
		return
	}

	val, err := costbasis.ComputeValuation(pos, snap, currency)
	if err != nil {
		writeValuationError(w, err)
		return
	}
	metrics.ValuationsTotal.WithLabelValues(currency).Inc()

	resp := PortfolioResponse{Position: pos, Valuation: val}
	if avg, ok := pos.AverageCost(); ok {
		resp.AverageCost = &avg
	}
	if s.wallet != nil && s.walletAddress != "" {
		resp.Wallet = s.walletValuation(ctx, pos, val)
	}

	writeJSON(w, http.StatusOK, resp)
}

// walletValuation marks the on-chain balance to the same quote. A fetch
// failure degrades to a nil section rather than failing the whole view.
func (s *Service) walletValuation(ctx context.Context, pos model.Position, val model.Valuation) *WalletValuation {
	balance, err := s.wallet.Balance(ctx, s.walletAddress)
	if err != nil {
		metrics.SnapshotFetchErrors.WithLabelValues("wallet").Inc()
		slog.Warn("wallet balance fetch failed", "address", s.walletAddress, "err", err)
		return nil
	}

	value := balance.Mul(val.PricePerBTC)
	wv := &WalletValuation{
		Address:    s.walletAddress,
		BalanceBTC: balance,
		Value:      value,
		PnL:        value.Sub(pos.TotalCostFiat),
	}
	if pos.TotalCostFiat.IsPositive() {
		pct := wv.PnL.Div(pos.TotalCostFiat).Mul(decimal.NewFromInt(100)).Round(2)
		wv.PnLPercent = &pct
	}
	return wv
}

// GetTaxReport handles GET /api/v1/tax/report?currency=CAD&inclusion_rate=0.5.
func (s *Service) GetTaxReport(w http.ResponseWriter, r *http.Request) {
	report, _, err := s.buildTaxReport(r)
	if err != nil {
		s.writeTaxError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// DownloadTaxReport handles GET /api/v1/tax/report/download. The text is a
// deterministic rendering of the structured report: same numbers, no
// recomputation.
func (s *Service) DownloadTaxReport(w http.ResponseWriter, r *http.Request) {
	report, pos, err := s.buildTaxReport(r)
	if err != nil {
		s.writeTaxError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="btc-tax-summary.txt"`)
	w.Write([]byte(tax.RenderText(report, pos)))
}

func (s *Service) buildTaxReport(r *http.Request) (model.TaxReport, model.Position, error) {
	ctx := r.Context()
	currency := s.currencyParam(r)

	rate := s.inclusionRate
	if raw := r.URL.Query().Get("inclusion_rate"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return model.TaxReport{}, model.Position{}, tax.ErrInvalidInclusionRate
		}
		rate = parsed
	}

	purchases, err := s.store.ListPurchases(ctx)
	if err != nil {
		return model.TaxReport{}, model.Position{}, err
	}
	pos := costbasis.ComputePosition(purchases)

	snap, err := s.prices.Snapshot(ctx)
	if err != nil {
		metrics.SnapshotFetchErrors.WithLabelValues("price").Inc()
		return model.TaxReport{}, model.Position{}, errSnapshotUnavailable
	}

	val, err := costbasis.ComputeValuation(pos, snap, currency)
	if err != nil {
		return model.TaxReport{}, model.Position{}, err
	}

	report, err := tax.Summarize(pos, val, rate)
	if err != nil {
		return model.TaxReport{}, model.Position{}, err
	}
	return report, pos, nil
}

var errSnapshotUnavailable = errors.New("market data unavailable")

func (s *Service) writeTaxError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tax.ErrInvalidInclusionRate):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errSnapshotUnavailable):
		writeError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, costbasis.ErrMissingCurrencyQuote),
		errors.Is(err, costbasis.ErrInvalidMarketPrice):
		writeValuationError(w, err)
	default:
		writeError(w, "failed to build tax report", http.StatusInternalServerError)
	}
}

// PlanWithdrawal handles POST /api/v1/withdrawals/plan.
func (s *Service) PlanWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	txVBytes := req.TxVBytes
	if txVBytes == 0 {
		txVBytes = s.defaultTxVBytes
	}

	snap, err := s.fees.Snapshot(r.Context())
	if err != nil {
		metrics.SnapshotFetchErrors.WithLabelValues("fee").Inc()
		writeError(w, "network fee data unavailable", http.StatusBadGateway)
		return
	}

	plan, err := s.planner.Plan(req.AmountSats, snap, txVBytes,
		withdraw.Urgency{MaxTargetBlocks: req.MaxTargetBlocks})
	if err != nil {
		metrics.WithdrawalPlanRejections.Inc()
		switch {
		case errors.Is(err, withdraw.ErrInvalidAmount),
			errors.Is(err, withdraw.ErrInvalidTxSize):
			writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, withdraw.ErrInsufficientAmountForFee),
			errors.Is(err, withdraw.ErrNoTierForUrgency):
			writeError(w, err.Error(), http.StatusConflict)
		default:
			writeError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	metrics.WithdrawalPlansTotal.WithLabelValues(plan.Tier).Inc()
	slog.Info("withdrawal plan computed",
		"requested_sats", plan.RequestedSats,
		"fee_sats", plan.EstimatedFeeSats,
		"tier", plan.Tier,
		"eta", plan.ETA,
	)
	writeJSON(w, http.StatusOK, plan)
}

// GetProjection handles
// GET /api/v1/projection?contribution=100&periods=52&currency=CAD.
// An explicit price query parameter overrides the live quote.
func (s *Service) GetProjection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	contribution, err := decimal.NewFromString(q.Get("contribution"))
	if err != nil {
		writeError(w, "contribution must be a decimal amount", http.StatusBadRequest)
		return
	}
	periods, err := strconv.Atoi(q.Get("periods"))
	if err != nil {
		writeError(w, "periods must be an integer", http.StatusBadRequest)
		return
	}

	currency := s.currencyParam(r)
	var price decimal.Decimal
	if raw := q.Get("price"); raw != "" {
		price, err = decimal.NewFromString(raw)
		if err != nil {
			writeError(w, "price must be a decimal amount", http.StatusBadRequest)
			return
		}
	} else {
		snap, err := s.prices.Snapshot(r.Context())
		if err != nil {
			metrics.SnapshotFetchErrors.WithLabelValues("price").Inc()
			writeError(w, "market data unavailable", http.StatusBadGateway)
			return
		}
		var ok bool
		price, ok = snap.Price(currency)
		if !ok {
			writeError(w, "no quote for currency "+currency, http.StatusNotFound)
			return
		}
	}

	projected, err := projection.Project(contribution, periods, price)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contribution":  contribution,
		"periods":       periods,
		"currency":      currency,
		"price_per_btc": price,
		"projected_btc": projected,
	})
}

// --- Helpers ---

func (s *Service) currencyParam(r *http.Request) string {
	if c := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))); c != "" {
		return c
	}
	return s.defaultCurrency
}

func writeValuationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, costbasis.ErrMissingCurrencyQuote):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, costbasis.ErrInvalidMarketPrice):
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
