package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the tables if they do not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	path_hash VARCHAR(64) PRIMARY KEY,
	path TEXT NOT NULL,
	pageviews BIGINT NOT NULL DEFAULT 0
)`, d.tables.Pageviews),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	resource_id BIGINT PRIMARY KEY,
	pageview_total BIGINT NOT NULL DEFAULT 0
)`, d.tables.Totals),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	resource_id BIGINT PRIMARY KEY,
	totalcount BIGINT NOT NULL DEFAULT 0,
	"timestamp" BIGINT NOT NULL DEFAULT 0
)`, d.tables.LegacyTotals),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	fingerprint VARCHAR(255) PRIMARY KEY,
	payload BYTEA NOT NULL,
	expires_at BIGINT NOT NULL
)`, d.tables.ChunkCache),
	}
	for _, stmt := range stmts {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
