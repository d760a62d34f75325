package store

import (
	"context"
	"sort"
	"sync"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	purchases []model.Purchase
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ReplaceAll(_ context.Context, purchases []model.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.purchases = make([]model.Purchase, len(purchases))
	copy(s.purchases, purchases)
	sortByTimestamp(s.purchases)
	return nil
}

func (s *MemoryStore) InsertPurchase(_ context.Context, p *model.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purchases = append(s.purchases, *p)
	sortByTimestamp(s.purchases)
	return nil
}

func (s *MemoryStore) ListPurchases(_ context.Context) ([]model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Purchase, len(s.purchases))
	copy(out, s.purchases)
	return out, nil
}

func sortByTimestamp(ps []model.Purchase) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Timestamp.Before(ps[j].Timestamp)
	})
}
