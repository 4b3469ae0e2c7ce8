package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/metrics"
)

// DefaultCacheTTL is used when neither the fetcher nor the call sets a TTL.
const DefaultCacheTTL = 24 * time.Hour

// Fingerprinter derives a stable cache key from request parameters.
type Fingerprinter interface {
	Fingerprint(v any) (string, error)
}

// Authenticator reports whether a credential can currently be presented to
// the provider: an unexpired access token or a refresh token.
type Authenticator interface {
	Usable() bool
}

// Fetcher runs report queries through the chunk cache.
type Fetcher struct {
	client      counter.AnalyticsClient
	cache       counter.ChunkCache
	fingerprint Fingerprinter
	auth        Authenticator
	ttl         time.Duration
	logger      *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

// WithCredentials makes live fetches fail with counter.ErrAuthentication
// while auth holds no usable credential. Cached chunks are still served.
func WithCredentials(auth Authenticator) Option {
	return func(f *Fetcher) {
		f.auth = auth
	}
}

// NewFetcher wires a Fetcher. A nil cache disables caching.
func NewFetcher(client counter.AnalyticsClient, cache counter.ChunkCache, fp Fingerprinter, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      client,
		cache:       cache,
		fingerprint: fp,
		ttl:         DefaultCacheTTL,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fingerprint returns the cache key for params.
func (f *Fetcher) Fingerprint(params counter.FetchParameters) (string, error) {
	key, err := f.fingerprint.Fingerprint(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint parameters: %w", err)
	}
	return key, nil
}

// Fetch returns the chunk described by params. Cached payloads are served
// while fresh unless opts.Refresh is set; live results are stored for reuse.
func (f *Fetcher) Fetch(ctx context.Context, params counter.FetchParameters, opts counter.CacheOptions) (counter.ChunkPayload, error) {
	if err := params.Validate(); err != nil {
		return counter.ChunkPayload{}, err
	}
	if f.client == nil {
		return counter.ChunkPayload{}, &counter.ConfigurationError{Field: "analytics", Reason: "client is not configured"}
	}

	key := opts.Fingerprint
	if key == "" {
		var err error
		if key, err = f.Fingerprint(params); err != nil {
			return counter.ChunkPayload{}, err
		}
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = f.ttl
	}
	logger := f.logger.With(zap.String("fingerprint", key), zap.Int("start_index", params.StartIndex))

	if payload, ok := f.lookup(ctx, key, opts.Refresh, logger); ok {
		return payload, nil
	}

	if f.auth != nil && !f.auth.Usable() {
		return counter.ChunkPayload{}, counter.ErrAuthentication
	}
	payload, err := f.client.FetchReport(ctx, params)
	if err != nil {
		metrics.ObserveUpstreamRequest("error")
		return counter.ChunkPayload{}, upstreamError(err)
	}
	if payload.Error != "" {
		metrics.ObserveUpstreamRequest("error")
		return counter.ChunkPayload{}, &counter.UpstreamRequestError{Message: payload.Error}
	}
	metrics.ObserveUpstreamRequest("success")

	f.store(ctx, key, payload, ttl, logger)
	return payload, nil
}

func (f *Fetcher) lookup(ctx context.Context, key string, refresh bool, logger *zap.Logger) (counter.ChunkPayload, bool) {
	if f.cache == nil || refresh {
		metrics.ObserveCacheLookup("bypass")
		return counter.ChunkPayload{}, false
	}
	data, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		metrics.ObserveCacheLookup("error")
		logger.Warn("chunk cache lookup failed", zap.Error(err))
		return counter.ChunkPayload{}, false
	}
	if !ok {
		metrics.ObserveCacheLookup("miss")
		return counter.ChunkPayload{}, false
	}
	var payload counter.ChunkPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.ObserveCacheLookup("error")
		logger.Warn("discarding undecodable cached chunk", zap.Error(err))
		return counter.ChunkPayload{}, false
	}
	metrics.ObserveCacheLookup("hit")
	logger.Debug("chunk served from cache", zap.Int("rows", len(payload.Rows)))
	return payload, true
}

func (f *Fetcher) store(ctx context.Context, key string, payload counter.ChunkPayload, ttl time.Duration, logger *zap.Logger) {
	if f.cache == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("encode chunk for cache", zap.Error(err))
		return
	}
	if err := f.cache.Put(ctx, key, data, ttl); err != nil {
		logger.Warn("chunk cache store failed", zap.Error(err))
	}
}

// upstreamError keeps authentication and already-typed failures intact and
// wraps anything else as an UpstreamRequestError.
func upstreamError(err error) error {
	if errors.Is(err, counter.ErrAuthentication) || counter.IsUpstreamError(err) || counter.IsConfigurationError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("fetch report: %w", err)
	}
	return &counter.UpstreamRequestError{Message: err.Error(), Err: err}
}
