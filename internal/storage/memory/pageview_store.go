// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// PageviewStore implements counter.PageviewStore with a map.
type PageviewStore struct {
	mu   sync.RWMutex
	rows map[counter.PathKey]counter.PageviewRecord
}

// NewPageviewStore constructs a PageviewStore.
func NewPageviewStore() *PageviewStore {
	return &PageviewStore{rows: make(map[counter.PathKey]counter.PageviewRecord)}
}

// UpsertPageview replaces the row for record.Key.
func (s *PageviewStore) UpsertPageview(_ context.Context, record counter.PageviewRecord) error {
	if record.Key == "" {
		return errors.New("path key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[record.Key] = record
	return nil
}

// FindByKeys returns the stored rows for keys; unknown keys are skipped.
func (s *PageviewStore) FindByKeys(_ context.Context, keys []counter.PathKey) ([]counter.PageviewRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[counter.PathKey]struct{}, len(keys))
	var out []counter.PageviewRecord
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if row, ok := s.rows[k]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// ListPageviews returns rows ordered by pageviews descending, then key.
// A non-positive limit yields no rows and a negative offset counts as zero.
func (s *PageviewStore) ListPageviews(_ context.Context, limit, offset int) ([]counter.PageviewRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	offset = max(offset, 0)

	s.mu.RLock()
	all := make([]counter.PageviewRecord, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Pageviews != all[j].Pageviews {
			return all[i].Pageviews > all[j].Pageviews
		}
		return all[i].Key < all[j].Key
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Len reports the number of stored rows.
func (s *PageviewStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
