// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/pageview-counter/internal/aggregator"
	"github.com/JakeFAU/pageview-counter/internal/alias"
	"github.com/JakeFAU/pageview-counter/internal/analytics"
	"github.com/JakeFAU/pageview-counter/internal/analytics/fixture"
	"github.com/JakeFAU/pageview-counter/internal/analytics/ga"
	"github.com/JakeFAU/pageview-counter/internal/archive/gcs"
	"github.com/JakeFAU/pageview-counter/internal/archive/local"
	memcache "github.com/JakeFAU/pageview-counter/internal/cache/memory"
	rediscache "github.com/JakeFAU/pageview-counter/internal/cache/redis"
	"github.com/JakeFAU/pageview-counter/internal/clock/system"
	"github.com/JakeFAU/pageview-counter/internal/config"
	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/credential"
	"github.com/JakeFAU/pageview-counter/internal/hash/md5"
	"github.com/JakeFAU/pageview-counter/internal/hash/sha256"
	"github.com/JakeFAU/pageview-counter/internal/id/uuid"
	"github.com/JakeFAU/pageview-counter/internal/importer"
	"github.com/JakeFAU/pageview-counter/internal/metrics"
	"github.com/JakeFAU/pageview-counter/internal/publisher/pubsub"
	"github.com/JakeFAU/pageview-counter/internal/scheduler"
	"github.com/JakeFAU/pageview-counter/internal/storage/memory"
	"github.com/JakeFAU/pageview-counter/internal/storage/postgres"
	"github.com/JakeFAU/pageview-counter/internal/telemetry"
)

// App holds the shared, long-lived services built from one Config.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Pageviews   counter.PageviewStore
	Totals      counter.TotalsStore
	Cache       counter.ChunkCache
	Credentials *credential.Store
	Fetcher     *analytics.Fetcher
	// Profiles is nil when reports come from a fixture.
	Profiles   counter.ProfileLister
	Importer   *importer.Orchestrator
	Aggregator *aggregator.Engine
	Scheduler  *scheduler.Scheduler

	db      *postgres.DB
	closers []func() error
}

// New builds every service cfg selects. It fails fast when a backend cannot
// be reached; anything opened before the failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{Config: cfg, Logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	clock := system.New()

	if err := a.initTracing(ctx); err != nil {
		return err
	}
	if err := a.initStorage(ctx, clock); err != nil {
		return err
	}
	if err := a.initCache(ctx, clock); err != nil {
		return err
	}

	expiry, err := cfg.TokenExpiry()
	if err != nil {
		return err
	}
	a.Credentials = credential.NewStore(
		credential.Credentials{AccessToken: cfg.OAuth.AccessToken, ExpiresAt: expiry, RefreshToken: cfg.OAuth.RefreshToken},
		credential.OAuthRefresher{Config: &oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuth.TokenURL},
		}},
		clock,
		a.Logger.Named("credential"),
	)

	client, live, err := a.analyticsClient(ctx)
	if err != nil {
		return err
	}
	opts := []analytics.Option{analytics.WithLogger(a.Logger.Named("fetcher")), analytics.WithTTL(cfg.CacheTTL())}
	if live {
		opts = append(opts, analytics.WithCredentials(a.Credentials))
	}
	a.Fetcher = analytics.NewFetcher(client, a.Cache, sha256.New(), opts...)

	publisher, err := a.publisher(ctx)
	if err != nil {
		return err
	}

	archive, err := a.archive(ctx)
	if err != nil {
		return err
	}

	start, err := cfg.StartDate()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	a.Importer, err = importer.New(importer.Config{
		ProfileID: cfg.Analytics.ProfileID,
		ChunkSize: cfg.Analytics.ChunkSize,
		StartDate: start,
		Location:  loc,
		CacheTTL:  cfg.CacheTTL(),
		Topic:     cfg.PubSub.TopicName,
	}, importer.Dependencies{
		Fetcher:   a.Fetcher,
		Store:     a.Pageviews,
		Keyer:     md5.New(),
		Publisher: publisher,
		Archive:   archive,
		IDs:       uuid.New(),
		Clock:     clock,
		Logger:    a.Logger.Named("importer"),
	})
	if err != nil {
		return fmt.Errorf("init importer: %w", err)
	}

	a.Aggregator, err = aggregator.New(aggregator.Config{
		ResourceType:       cfg.Aggregate.ResourceType,
		Locales:            cfg.Locales,
		MirrorLegacyTotals: cfg.Aggregate.MirrorLegacyTotals,
	}, aggregator.Dependencies{
		Pageviews: a.Pageviews,
		Totals:    a.Totals,
		Keyer:     md5.New(),
		Aliases:   alias.NewStatic(cfg.AliasMap()),
		Clock:     clock,
		Logger:    a.Logger.Named("aggregator"),
	})
	if err != nil {
		return fmt.Errorf("init aggregator: %w", err)
	}

	if cfg.Schedule.Enabled {
		var purger scheduler.Purger
		if cfg.Cache.Driver == "postgres" && a.db != nil {
			purger = a.db.Cache
		}
		a.Scheduler, err = scheduler.New(scheduler.Config{
			ImportCron: cfg.Schedule.ImportCron,
			PurgeCron:  cfg.Schedule.PurgeCron,
		}, a.Importer, purger, a.Logger.Named("scheduler"))
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initTracing(ctx context.Context) error {
	if !a.Config.Tracing.Enabled {
		return nil
	}
	exporter := telemetry.NewLogExporter(a.Logger.Named("trace"))
	tp, err := telemetry.InitTracerProvider(ctx, a.Config.Tracing.ServiceName, sdktrace.NewBatchSpanProcessor(exporter))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})
	return nil
}

func (a *App) initStorage(ctx context.Context, clock counter.Clock) error {
	needDB := a.Config.Storage.Driver == "postgres" || a.Config.Cache.Driver == "postgres"
	if needDB {
		pool, err := postgres.Connect(ctx, postgres.Config{DSN: a.Config.DB.DSN, MaxConns: a.Config.DB.MaxConns})
		if err != nil {
			return err
		}
		db, err := postgres.NewDB(pool, postgres.Tables{}, clock)
		if err != nil {
			pool.Close()
			return err
		}
		a.db = db
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.Logger.Info("connected to postgres")
	}

	switch a.Config.Storage.Driver {
	case "postgres":
		a.Pageviews = a.db.Pageviews
		a.Totals = a.db.Totals
	default:
		a.Pageviews = memory.NewPageviewStore()
		a.Totals = memory.NewTotalsStore()
		a.Logger.Info("using in-memory storage; counts are lost on exit")
	}
	return nil
}

func (a *App) initCache(ctx context.Context, clock counter.Clock) error {
	switch a.Config.Cache.Driver {
	case "redis":
		c, err := rediscache.New(ctx, a.Config.Redis.URL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, c.Close)
		a.Cache = c
	case "postgres":
		a.Cache = a.db.Cache
	default:
		c, err := memcache.New(a.Config.Cache.MaxEntries, clock)
		if err != nil {
			return err
		}
		a.Cache = c
	}
	a.Logger.Info("chunk cache ready", zap.String("driver", a.Config.Cache.Driver))
	return nil
}

// analyticsClient returns the report client and whether it talks to the live provider.
func (a *App) analyticsClient(ctx context.Context) (counter.AnalyticsClient, bool, error) {
	cfg := a.Config.Analytics
	if cfg.FixturePath != "" {
		c, err := fixture.Load(cfg.FixturePath)
		if err != nil {
			return nil, false, err
		}
		a.Logger.Info("serving reports from fixture", zap.String("path", cfg.FixturePath))
		return c, false, nil
	}
	client, err := ga.New(ctx, a.Credentials.HTTPClient(ctx), ga.Config{
		BaseURL: cfg.BaseURL,
		Timeout: a.Config.AnalyticsTimeout(),
	}, a.Logger.Named("ga"))
	if err != nil {
		return nil, false, err
	}
	a.Profiles = client
	return analytics.NewRateLimited(client, analytics.RateLimitConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}), true, nil
}

// archive returns the chunk archive, or nil when archiving is off.
func (a *App) archive(ctx context.Context) (counter.BlobStore, error) {
	cfg := a.Config.Archive
	switch cfg.Driver {
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		a.Logger.Info("archiving chunks", zap.String("dir", cfg.BaseDir))
		return store, nil
	case "gcs":
		store, err := gcs.Connect(ctx, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Logger.Info("archiving chunks", zap.String("bucket", cfg.Bucket))
		return store, nil
	default:
		return nil, nil
	}
}

func (a *App) publisher(ctx context.Context) (counter.Publisher, error) {
	if a.Config.PubSub.TopicName == "" {
		return nil, nil
	}
	p, err := pubsub.Connect(ctx, a.Config.PubSub.ProjectID, a.Config.PubSub.TopicName)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)
	a.Logger.Info("publishing chunk summaries", zap.String("topic", a.Config.PubSub.TopicName))
	return p, nil
}

// Ready reports whether the database, when configured, is reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Ping(ctx)
}

// Close shuts down services in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error closing services", zap.Error(err))
	}
}
