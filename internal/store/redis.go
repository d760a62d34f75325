package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

const ledgerKey = "purchases:all"

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Only the ledger listing is cached; positions are always recomputed from
// it, so caching derived values would just add a second staleness source.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) ReplaceAll(ctx context.Context, purchases []model.Purchase) error {
	if err := s.primary.ReplaceAll(ctx, purchases); err != nil {
		return err
	}
	s.rdb.Del(ctx, ledgerKey)
	return nil
}

func (s *CachedStore) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	if err := s.primary.InsertPurchase(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, ledgerKey)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListPurchases(ctx context.Context) ([]model.Purchase, error) {
	data, err := s.rdb.Get(ctx, ledgerKey).Bytes()
	if err == nil {
		var purchases []model.Purchase
		if json.Unmarshal(data, &purchases) == nil {
			return purchases, nil
		}
	}

	// Cache miss: read from primary.
	purchases, err := s.primary.ListPurchases(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(purchases); err == nil {
		s.rdb.Set(ctx, ledgerKey, data, s.ttl)
	}
	return purchases, nil
}
