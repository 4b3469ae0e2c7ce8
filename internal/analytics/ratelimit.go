package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/metrics"
)

// RateLimitConfig holds provider quota settings.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// RateLimited wraps an AnalyticsClient with a token bucket so live queries
// stay within provider quota.
type RateLimited struct {
	next    counter.AnalyticsClient
	limiter *rate.Limiter
}

// NewRateLimited creates a RateLimited client. A non-positive rate disables limiting.
func NewRateLimited(next counter.AnalyticsClient, cfg RateLimitConfig) *RateLimited {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(r, burst)}
}

// FetchReport waits for a token, then delegates.
func (r *RateLimited) FetchReport(ctx context.Context, params counter.FetchParameters) (counter.ChunkPayload, error) {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		// Wait also fails early when the deadline would pass before a token frees up.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return counter.ChunkPayload{}, fmt.Errorf("rate limit wait: %w", ctxErr)
		}
		if _, ok := ctx.Deadline(); ok {
			return counter.ChunkPayload{}, fmt.Errorf("rate limit wait: %v: %w", err, context.DeadlineExceeded)
		}
		return counter.ChunkPayload{}, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return r.next.FetchReport(ctx, params)
}
