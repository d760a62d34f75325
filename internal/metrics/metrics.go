// Package metrics provides Prometheus instrumentation for the portfolio
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ImportsTotal counts CSV import requests by outcome.
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcfolio_imports_total",
		Help: "Total purchase CSV imports",
	}, []string{"outcome"})

	// RecordsDropped counts rows rejected during normalization. Dropped
	// rows are surfaced, never silently swallowed.
	RecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btcfolio_records_dropped_total",
		Help: "Invalid rows dropped during import normalization",
	})

	// PurchasesImported counts accepted purchase records.
	PurchasesImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btcfolio_purchases_imported_total",
		Help: "Valid purchase records accepted into the ledger",
	})

	// ValuationsTotal counts portfolio valuations by quote currency.
	ValuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcfolio_valuations_total",
		Help: "Portfolio valuations computed",
	}, []string{"currency"})

	// WithdrawalPlansTotal counts computed withdrawal plans by fee tier.
	WithdrawalPlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcfolio_withdrawal_plans_total",
		Help: "Withdrawal plans computed",
	}, []string{"tier"})

	// WithdrawalPlanRejections counts plan requests that failed validation
	// (fee exceeds amount, no tier for urgency, bad size).
	WithdrawalPlanRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btcfolio_withdrawal_plan_rejections_total",
		Help: "Withdrawal plan requests rejected by validation",
	})

	// SnapshotFetchErrors counts failed market/fee provider fetches.
	SnapshotFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcfolio_snapshot_fetch_errors_total",
		Help: "Failed external snapshot fetches",
	}, []string{"provider"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btcfolio_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "btcfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label to avoid a chi route dependency;
		// the API surface is small enough that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
