package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// TotalsStore implements counter.TotalsStore over the totals table and the
// legacy mirror table.
type TotalsStore struct {
	pool        querier
	table       string
	legacyTable string
}

// UpsertTotal replaces the aggregated count for a resource.
func (s *TotalsStore) UpsertTotal(ctx context.Context, total counter.ResourceTotal) error {
	query := fmt.Sprintf(`
INSERT INTO %s (resource_id, pageview_total)
VALUES ($1, $2)
ON CONFLICT (resource_id) DO UPDATE
SET pageview_total = EXCLUDED.pageview_total`, s.table)
	if _, err := s.pool.Exec(ctx, query, total.ResourceID, total.Pageviews); err != nil {
		return fmt.Errorf("upsert total: %w", err)
	}
	return nil
}

// GetTotal loads a resource total or returns counter.ErrNotFound.
func (s *TotalsStore) GetTotal(ctx context.Context, resourceID int64) (counter.ResourceTotal, error) {
	query := fmt.Sprintf(`SELECT resource_id, pageview_total FROM %s WHERE resource_id = $1`, s.table)
	var total counter.ResourceTotal
	err := s.pool.QueryRow(ctx, query, resourceID).Scan(&total.ResourceID, &total.Pageviews)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return counter.ResourceTotal{}, counter.ErrNotFound
		}
		return counter.ResourceTotal{}, fmt.Errorf("get total: %w", err)
	}
	return total, nil
}

// UpsertLegacyTotal mirrors the total and its Unix timestamp into the legacy table.
func (s *TotalsStore) UpsertLegacyTotal(ctx context.Context, total counter.ResourceTotal) error {
	query := fmt.Sprintf(`
INSERT INTO %s (resource_id, totalcount, "timestamp")
VALUES ($1, $2, $3)
ON CONFLICT (resource_id) DO UPDATE
SET totalcount = EXCLUDED.totalcount, "timestamp" = EXCLUDED."timestamp"`, s.legacyTable)
	if _, err := s.pool.Exec(ctx, query, total.ResourceID, total.Pageviews, total.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("upsert legacy total: %w", err)
	}
	return nil
}
