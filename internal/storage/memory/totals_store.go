package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// TotalsStore implements counter.TotalsStore with two maps.
type TotalsStore struct {
	mu     sync.RWMutex
	totals map[int64]counter.ResourceTotal
	legacy map[int64]counter.ResourceTotal
}

// NewTotalsStore constructs a TotalsStore.
func NewTotalsStore() *TotalsStore {
	return &TotalsStore{
		totals: make(map[int64]counter.ResourceTotal),
		legacy: make(map[int64]counter.ResourceTotal),
	}
}

// UpsertTotal replaces the total for a resource.
func (s *TotalsStore) UpsertTotal(_ context.Context, total counter.ResourceTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[total.ResourceID] = total
	return nil
}

// GetTotal returns the stored total or counter.ErrNotFound.
func (s *TotalsStore) GetTotal(_ context.Context, resourceID int64) (counter.ResourceTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, ok := s.totals[resourceID]
	if !ok {
		return counter.ResourceTotal{}, counter.ErrNotFound
	}
	return total, nil
}

// UpsertLegacyTotal replaces the mirrored total for a resource.
func (s *TotalsStore) UpsertLegacyTotal(_ context.Context, total counter.ResourceTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy[total.ResourceID] = total
	return nil
}

// LegacyTotal returns the mirrored total, if any.
func (s *TotalsStore) LegacyTotal(resourceID int64) (counter.ResourceTotal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, ok := s.legacy[resourceID]
	return total, ok
}
