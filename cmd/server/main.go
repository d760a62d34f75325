package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/btcfolio/portfolio-engine/internal/config"
	"github.com/btcfolio/portfolio-engine/internal/marketdata"
	"github.com/btcfolio/portfolio-engine/internal/metrics"
	"github.com/btcfolio/portfolio-engine/internal/portfolio"
	"github.com/btcfolio/portfolio-engine/internal/store"
	"github.com/btcfolio/portfolio-engine/internal/withdraw"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- External data providers ---
	prices := marketdata.NewPriceClient(cfg.PriceAPIBaseURL, cfg.Currencies, cfg.SnapshotTTL)
	fees := marketdata.NewFeeClient(cfg.FeeAPIBaseURL, cfg.SnapshotTTL)

	var wallet portfolio.WalletProvider
	if cfg.WalletAddress != "" {
		wallet = marketdata.NewWalletClient(cfg.WalletAPIBaseURL, cfg.SnapshotTTL)
		slog.Info("watching on-chain address", "address", cfg.WalletAddress)
	}

	// --- Withdrawal planner ---
	planner := withdraw.NewPlanner(cfg.CongestionVB)

	// --- WebSocket hub + snapshot refresh loop ---
	wsHub := portfolio.NewWSHub()
	go wsHub.Run()

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	go portfolio.RunSnapshotBroadcaster(refreshCtx, wsHub, prices, fees, cfg.SnapshotTTL)

	// --- Portfolio service ---
	svc := portfolio.NewService(portfolio.Options{
		Store:           st,
		Prices:          prices,
		Fees:            fees,
		Wallet:          wallet,
		Planner:         planner,
		WalletAddress:   cfg.WalletAddress,
		DefaultCurrency: cfg.DefaultCurrency(),
		InclusionRate:   cfg.InclusionRate,
		DefaultTxVBytes: cfg.DefaultTxVBytes,
	})

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"portfolio-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for snapshot updates.
		r.Get("/ws", wsHub.HandleWS)

		// Purchase ledger.
		r.Post("/purchases/import", svc.ImportPurchases)
		r.Get("/purchases", svc.ListPurchases)

		// Portfolio valuation.
		r.Get("/portfolio", svc.GetPortfolio)

		// Tax projection.
		r.Get("/tax/report", svc.GetTaxReport)
		r.Get("/tax/report/download", svc.DownloadTaxReport)

		// Withdrawal planning.
		r.Post("/withdrawals/plan", svc.PlanWithdrawal)

		// Contribution projection.
		r.Get("/projection", svc.GetProjection)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("portfolio-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down portfolio-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("portfolio-engine stopped")
}
