package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// ChunkCache implements counter.ChunkCache in the chunk_cache table.
type ChunkCache struct {
	pool  querier
	table string
	clock counter.Clock
}

func (c *ChunkCache) now() time.Time {
	if c.clock == nil {
		return time.Now()
	}
	return c.clock.Now()
}

// Get returns the payload only while now < expires_at.
func (c *ChunkCache) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE fingerprint = $1 AND expires_at > $2`, c.table)
	var payload []byte
	err := c.pool.QueryRow(ctx, query, fingerprint, c.now().Unix()).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached chunk: %w", err)
	}
	return payload, true, nil
}

// Put upserts payload with expires_at = now + ttl.
func (c *ChunkCache) Put(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be > 0, got %s", ttl)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (fingerprint, payload, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (fingerprint) DO UPDATE
SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`, c.table)
	expiresAt := c.now().Add(ttl).Unix()
	if _, err := c.pool.Exec(ctx, query, fingerprint, payload, expiresAt); err != nil {
		return fmt.Errorf("put cached chunk: %w", err)
	}
	return nil
}

// Invalidate deletes the entry for fingerprint.
func (c *ChunkCache) Invalidate(ctx context.Context, fingerprint string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE fingerprint = $1`, c.table)
	if _, err := c.pool.Exec(ctx, query, fingerprint); err != nil {
		return fmt.Errorf("invalidate cached chunk: %w", err)
	}
	return nil
}

// Purge deletes expired entries and reports how many were removed.
func (c *ChunkCache) Purge(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1`, c.table)
	tag, err := c.pool.Exec(ctx, query, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge cached chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}
