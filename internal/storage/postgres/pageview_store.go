package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// PageviewStore implements counter.PageviewStore.
type PageviewStore struct {
	pool  querier
	table string
}

// UpsertPageview inserts the row or replaces path and count for an existing key.
func (s *PageviewStore) UpsertPageview(ctx context.Context, record counter.PageviewRecord) error {
	if record.Key == "" {
		return fmt.Errorf("path key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (path_hash, path, pageviews)
VALUES ($1, $2, $3)
ON CONFLICT (path_hash) DO UPDATE
SET path = EXCLUDED.path, pageviews = EXCLUDED.pageviews`, s.table)
	if _, err := s.pool.Exec(ctx, query, string(record.Key), record.Path, record.Pageviews); err != nil {
		return fmt.Errorf("upsert pageview: %w", err)
	}
	return nil
}

// FindByKeys loads every row whose key is in keys with a single query.
func (s *PageviewStore) FindByKeys(ctx context.Context, keys []counter.PathKey) ([]counter.PageviewRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = string(k)
	}
	query := fmt.Sprintf(`SELECT path_hash, path, pageviews FROM %s WHERE path_hash = ANY($1)`, s.table)
	rows, err := s.pool.Query(ctx, query, raw)
	if err != nil {
		return nil, fmt.Errorf("find pageviews: %w", err)
	}
	defer rows.Close()
	return scanPageviews(rows)
}

// ListPageviews returns rows ordered by pageviews descending.
// A non-positive limit yields no rows and a negative offset counts as zero.
func (s *PageviewStore) ListPageviews(ctx context.Context, limit, offset int) ([]counter.PageviewRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	offset = max(offset, 0)
	query := fmt.Sprintf(`
SELECT path_hash, path, pageviews
FROM %s
ORDER BY pageviews DESC, path_hash
LIMIT $1 OFFSET $2`, s.table)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pageviews: %w", err)
	}
	defer rows.Close()
	return scanPageviews(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPageviews(rows rowScanner) ([]counter.PageviewRecord, error) {
	var out []counter.PageviewRecord
	for rows.Next() {
		var (
			key    string
			record counter.PageviewRecord
		)
		if err := rows.Scan(&key, &record.Path, &record.Pageviews); err != nil {
			return nil, fmt.Errorf("scan pageview row: %w", err)
		}
		record.Key = counter.PathKey(key)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pageview rows: %w", err)
	}
	return out, nil
}
