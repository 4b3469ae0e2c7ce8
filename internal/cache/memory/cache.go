// Package memory provides an in-process chunk cache.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// DefaultMaxEntries bounds the cache when no size is configured.
const DefaultMaxEntries = 256

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Cache implements counter.ChunkCache on top of a size-bounded LRU. Expiry is
// tracked per entry against the injected clock.
type Cache struct {
	entries *lru.Cache[string, entry]
	clock   counter.Clock
}

// New constructs a Cache holding at most maxEntries payloads.
func New(maxEntries int, clock counter.Clock) (*Cache, error) {
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{entries: entries, clock: clock}, nil
}

// Get returns the payload when present and unexpired. Expired entries are
// evicted on access.
func (c *Cache) Get(_ context.Context, fingerprint string) ([]byte, bool, error) {
	e, ok := c.entries.Get(fingerprint)
	if !ok {
		return nil, false, nil
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.entries.Remove(fingerprint)
		return nil, false, nil
	}
	return append([]byte(nil), e.payload...), true, nil
}

// Put stores a copy of payload until now + ttl.
func (c *Cache) Put(_ context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be > 0, got %s", ttl)
	}
	c.entries.Add(fingerprint, entry{
		payload:   append([]byte(nil), payload...),
		expiresAt: c.clock.Now().Add(ttl),
	})
	return nil
}

// Invalidate drops the entry for fingerprint, if any.
func (c *Cache) Invalidate(_ context.Context, fingerprint string) error {
	c.entries.Remove(fingerprint)
	return nil
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	return c.entries.Len()
}
