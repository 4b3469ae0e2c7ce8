// Package aggregator sums stored pageviews over every path that refers to a
// resource and persists the result.
package aggregator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/metrics"
	"github.com/JakeFAU/pageview-counter/internal/telemetry"
)

// DefaultResourceType is used when Config.ResourceType is empty.
const DefaultResourceType = "node"

// Config controls variant generation and the legacy mirror.
type Config struct {
	ResourceType       string
	Locales            []counter.Locale
	MirrorLegacyTotals bool
}

// Dependencies are the collaborators an Engine needs.
type Dependencies struct {
	Pageviews counter.PageviewStore
	Totals    counter.TotalsStore
	Keyer     counter.PathKeyer
	Aliases   counter.AliasResolver
	Clock     counter.Clock
	Logger    *zap.Logger
}

// Engine computes resource totals.
type Engine struct {
	cfg  Config
	deps Dependencies
}

// New returns an Engine.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Pageviews == nil || deps.Totals == nil || deps.Keyer == nil || deps.Clock == nil {
		return nil, fmt.Errorf("aggregator requires pageview store, totals store, keyer and clock")
	}
	if cfg.ResourceType == "" {
		cfg.ResourceType = DefaultResourceType
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, deps: deps}, nil
}

// Variants returns the path variants of resourceID.
func (e *Engine) Variants(resourceID int64) []string {
	canonical := counter.CanonicalPath(e.cfg.ResourceType, resourceID)
	return counter.Variants(canonical, e.cfg.Locales, e.deps.Aliases)
}

// Aggregate recomputes and stores the total for resourceID. When the lookup
// fails nothing is written, so a previously stored total survives.
func (e *Engine) Aggregate(ctx context.Context, resourceID int64) (_ counter.ResourceTotal, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "aggregator.Aggregate")
	defer func() {
		telemetry.Fail(span, err)
		span.End()
	}()

	variants := e.Variants(resourceID)
	span.SetAttributes(attribute.Int64("resource.id", resourceID), attribute.Int("resource.variants", len(variants)))
	logger := e.deps.Logger.With(zap.Int64("resource_id", resourceID))

	sum, err := e.sum(ctx, variants)
	if err != nil {
		metrics.ObserveAggregation("lookup_error")
		return counter.ResourceTotal{}, fmt.Errorf("aggregate resource %d: %w", resourceID, err)
	}

	total := counter.ResourceTotal{ResourceID: resourceID, Pageviews: sum, UpdatedAt: e.deps.Clock.Now()}
	if err := e.deps.Totals.UpsertTotal(ctx, total); err != nil {
		metrics.ObserveAggregation("store_error")
		return counter.ResourceTotal{}, fmt.Errorf("store total for resource %d: %w", resourceID, err)
	}
	if e.cfg.MirrorLegacyTotals {
		if err := e.deps.Totals.UpsertLegacyTotal(ctx, total); err != nil {
			metrics.ObserveAggregation("mirror_error")
			return total, fmt.Errorf("mirror total for resource %d: %w", resourceID, err)
		}
	}

	metrics.ObserveAggregation("success")
	logger.Debug("resource total updated", zap.Int64("pageviews", sum), zap.Int("variants", len(variants)))
	return total, nil
}

// CountForPath returns the stored pageviews for path and its trailing-slash
// form without touching resource totals. The front page counts "/" and "//".
func (e *Engine) CountForPath(ctx context.Context, path string) (int64, error) {
	normalized := counter.NormalizePath(path)
	sum, err := e.sum(ctx, []string{normalized, normalized + "/"})
	if err != nil {
		return 0, fmt.Errorf("count path %q: %w", normalized, err)
	}
	return sum, nil
}

func (e *Engine) sum(ctx context.Context, paths []string) (int64, error) {
	records, err := e.deps.Pageviews.FindByKeys(ctx, e.deps.Keyer.Keys(paths))
	if err != nil {
		return 0, fmt.Errorf("lookup pageviews: %w", err)
	}
	var sum int64
	for _, r := range records {
		sum += r.Pageviews
	}
	return sum, nil
}
