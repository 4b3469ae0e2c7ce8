// Package metrics exposes Prometheus collectors for the pageview counter.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	importChunksTotal          *prometheus.CounterVec
	importRowsTotal            prometheus.Counter
	cacheLookupsTotal          *prometheus.CounterVec
	upstreamRequestsTotal      *prometheus.CounterVec
	aggregationsTotal          *prometheus.CounterVec
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		importChunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageview_import_chunks_total",
				Help: "Total number of chunk imports, labeled by status.",
			},
			[]string{"status"},
		)

		importRowsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pageview_import_rows_total",
				Help: "Total number of pageview rows upserted by chunk imports.",
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageview_chunk_cache_lookups_total",
				Help: "Chunk cache lookups, labeled by result (hit, miss, bypass, error).",
			},
			[]string{"result"},
		)

		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageview_upstream_requests_total",
				Help: "Live report queries sent to the analytics provider, labeled by status.",
			},
			[]string{"status"},
		)

		aggregationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageview_aggregations_total",
				Help: "Resource total aggregations, labeled by status.",
			},
			[]string{"status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pageview_rate_limit_delay_seconds",
				Help:    "Time spent waiting for provider quota before a live query.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveChunk records one chunk import outcome and the rows it saved.
func ObserveChunk(status string, rows int) {
	Init()
	importChunksTotal.WithLabelValues(status).Inc()
	if rows > 0 {
		importRowsTotal.Add(float64(rows))
	}
}

// ObserveCacheLookup records a chunk cache lookup result.
func ObserveCacheLookup(result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveUpstreamRequest records a live provider query.
func ObserveUpstreamRequest(status string) {
	Init()
	upstreamRequestsTotal.WithLabelValues(status).Inc()
}

// ObserveAggregation records a resource aggregation outcome.
func ObserveAggregation(status string) {
	Init()
	aggregationsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of a quota wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
