// Package store defines the persistence interface for the purchase ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

// Store is the persistence interface for imported purchase records.
// Purchases are append-only within an import; ReplaceAll swaps the whole
// ledger atomically when a fresh export is uploaded. The engine itself
// never mutates records: positions are always re-derived from the full
// sequence returned by ListPurchases.
type Store interface {
	// ReplaceAll atomically replaces the ledger with a new import batch.
	ReplaceAll(ctx context.Context, purchases []model.Purchase) error

	// InsertPurchase appends a single manually entered purchase.
	InsertPurchase(ctx context.Context, p *model.Purchase) error

	// ListPurchases returns the full ledger ordered by timestamp ascending.
	ListPurchases(ctx context.Context) ([]model.Purchase, error)
}
