// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Tables names the tables the stores read and write. Empty fields fall back
// to DefaultTables.
type Tables struct {
	Pageviews    string
	Totals       string
	LegacyTotals string
	ChunkCache   string
}

// DefaultTables returns the standard table names.
func DefaultTables() Tables {
	return Tables{
		Pageviews:    "pageview_by_path",
		Totals:       "resource_totals",
		LegacyTotals: "legacy_totals",
		ChunkCache:   "chunk_cache",
	}
}

func (t Tables) withDefaults() (Tables, error) {
	def := DefaultTables()
	if t.Pageviews == "" {
		t.Pageviews = def.Pageviews
	}
	if t.Totals == "" {
		t.Totals = def.Totals
	}
	if t.LegacyTotals == "" {
		t.LegacyTotals = def.LegacyTotals
	}
	if t.ChunkCache == "" {
		t.ChunkCache = def.ChunkCache
	}
	for _, name := range []string{t.Pageviews, t.Totals, t.LegacyTotals, t.ChunkCache} {
		if !validTableName.MatchString(name) {
			return Tables{}, fmt.Errorf("invalid table name %q", name)
		}
	}
	return t, nil
}

// querier is the subset of pgxpool.Pool the stores need; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Connect opens a pool using cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// DB bundles the stores that share one pool.
type DB struct {
	pool   querier
	tables Tables

	Pageviews *PageviewStore
	Totals    *TotalsStore
	Cache     *ChunkCache
}

// NewDB builds all stores over pool. clock is used by the chunk cache.
func NewDB(pool querier, tables Tables, clock counter.Clock) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	tables, err := tables.withDefaults()
	if err != nil {
		return nil, err
	}
	return &DB{
		pool:      pool,
		tables:    tables,
		Pageviews: &PageviewStore{pool: pool, table: tables.Pageviews},
		Totals:    &TotalsStore{pool: pool, table: tables.Totals, legacyTable: tables.LegacyTotals},
		Cache:     &ChunkCache{pool: pool, table: tables.ChunkCache, clock: clock},
	}, nil
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (d *DB) Close() {
	if d == nil || d.pool == nil {
		return
	}
	d.pool.Close()
}
