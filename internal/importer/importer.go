// Package importer pulls one chunk of the pageview report and upserts its rows.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/metrics"
	"github.com/JakeFAU/pageview-counter/internal/telemetry"
)

const (
	// DefaultChunkSize is the number of rows requested per chunk.
	DefaultChunkSize = 1000

	pathDimension   = "ga:pagePath"
	pageviewsMetric = "ga:pageviews"
	profileIDPrefix = "ga:"
)

// Fetcher returns one chunk of report rows.
type Fetcher interface {
	Fetch(ctx context.Context, params counter.FetchParameters, opts counter.CacheOptions) (counter.ChunkPayload, error)
}

// Config describes what to import.
type Config struct {
	ProfileID string
	ChunkSize int
	StartDate time.Time
	// Location decides where "tomorrow" begins for the report end date.
	Location *time.Location
	CacheTTL time.Duration
	// Topic receives each chunk summary when a publisher is configured.
	Topic string
}

// DefaultStartDate is the earliest date the provider keeps data for.
func DefaultStartDate() time.Time {
	return time.Date(2005, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Dependencies are the collaborators an Orchestrator needs.
type Dependencies struct {
	Fetcher   Fetcher
	Store     counter.PageviewStore
	Keyer     counter.PathKeyer
	Publisher counter.Publisher
	// Archive keeps the raw rows of every chunk when set.
	Archive counter.BlobStore
	IDs     counter.IDGenerator
	Clock   counter.Clock
	Logger  *zap.Logger
}

// Orchestrator runs chunk imports. Runs are serialized, so one process never
// has two imports writing the same rows at once.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
	mu   sync.Mutex
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if cfg.ChunkSize <= 0 {
		return nil, &counter.ConfigurationError{Field: "analytics.chunk_size", Reason: "must be > 0"}
	}
	if deps.Fetcher == nil || deps.Store == nil || deps.Keyer == nil || deps.Clock == nil {
		return nil, fmt.Errorf("importer requires fetcher, store, keyer and clock")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.StartDate.IsZero() {
		cfg.StartDate = DefaultStartDate()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// ChunkSize reports the configured rows per chunk.
func (o *Orchestrator) ChunkSize() int {
	return o.cfg.ChunkSize
}

// Parameters builds the fetch parameters for chunk index.
func (o *Orchestrator) Parameters(index int) (counter.FetchParameters, error) {
	if index < 0 {
		return counter.FetchParameters{}, &counter.ConfigurationError{Field: "index", Reason: "must be >= 0"}
	}
	if o.cfg.ProfileID == "" {
		return counter.FetchParameters{}, &counter.ConfigurationError{Field: "analytics.profile_id", Reason: "is required"}
	}
	now := o.deps.Clock.Now().In(o.cfg.Location)
	y, m, d := now.Date()
	return counter.FetchParameters{
		SourceID:   profileIDPrefix + o.cfg.ProfileID,
		Dimensions: []string{pathDimension},
		Metrics:    []string{pageviewsMetric},
		StartDate:  o.cfg.StartDate,
		EndDate:    time.Date(y, m, d+1, 0, 0, 0, 0, o.cfg.Location),
		StartIndex: o.cfg.ChunkSize*index + 1,
		MaxResults: o.cfg.ChunkSize,
	}, nil
}

// RunChunk fetches chunk index and upserts every row. Rows written before a
// failure stay written; re-running the chunk replaces them.
func (o *Orchestrator) RunChunk(ctx context.Context, index int) (summary counter.Summary, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "importer.RunChunk")
	span.SetAttributes(attribute.Int("chunk.index", index))
	defer func() {
		telemetry.Fail(span, err)
		span.SetAttributes(attribute.Int("chunk.rows", summary.Rows))
		span.End()
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	params, err := o.Parameters(index)
	if err != nil {
		metrics.ObserveChunk("invalid", 0)
		return counter.Summary{}, err
	}

	runID := ""
	if o.deps.IDs != nil {
		if runID, err = o.deps.IDs.NewID(); err != nil {
			return counter.Summary{}, fmt.Errorf("generate run id: %w", err)
		}
	}
	logger := o.deps.Logger.With(zap.String("run_id", runID), zap.Int("index", index), zap.Int("start_index", params.StartIndex))

	payload, err := o.deps.Fetcher.Fetch(ctx, params, counter.CacheOptions{TTL: o.cfg.CacheTTL})
	if err != nil {
		metrics.ObserveChunk("fetch_error", 0)
		logger.Error("fetch chunk", zap.Error(err))
		return counter.Summary{}, fmt.Errorf("fetch chunk %d: %w", index, err)
	}

	for i, row := range payload.Rows {
		record := counter.PageviewRecord{
			Key:       o.deps.Keyer.Key(row.Path),
			Path:      html.EscapeString(row.Path),
			Pageviews: max(row.Pageviews, 0),
		}
		if err := o.deps.Store.UpsertPageview(ctx, record); err != nil {
			metrics.ObserveChunk("store_error", i)
			logger.Error("upsert pageview", zap.String("path", row.Path), zap.Int("saved", i), zap.Error(err))
			return counter.Summary{}, fmt.Errorf("upsert %q: %w", row.Path, err)
		}
	}

	summary = counter.Summary{
		RunID:      runID,
		Index:      index,
		StartIndex: params.StartIndex,
		Rows:       len(payload.Rows),
		Exhausted:  len(payload.Rows) < o.cfg.ChunkSize,
		FinishedAt: o.deps.Clock.Now(),
	}
	summary.ArchiveURI = o.archive(ctx, summary, payload.Rows, logger)
	metrics.ObserveChunk("success", summary.Rows)
	logger.Info(fmt.Sprintf("saved %d paths", summary.Rows), zap.Bool("exhausted", summary.Exhausted))

	o.publish(ctx, summary, logger)
	return summary, nil
}

// RunAll imports chunks from index onward until one comes back exhausted.
// It stops at the first failure and returns the summaries completed so far.
func (o *Orchestrator) RunAll(ctx context.Context, from int) ([]counter.Summary, error) {
	var done []counter.Summary
	for index := from; ; index++ {
		if err := ctx.Err(); err != nil {
			return done, fmt.Errorf("import interrupted at chunk %d: %w", index, err)
		}
		summary, err := o.RunChunk(ctx, index)
		if err != nil {
			return done, err
		}
		done = append(done, summary)
		if summary.Exhausted {
			return done, nil
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, summary counter.Summary, logger *zap.Logger) {
	if o.deps.Publisher == nil || o.cfg.Topic == "" {
		return
	}
	id, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, summary)
	if err != nil {
		logger.Warn("publish chunk summary", zap.Error(err))
		return
	}
	logger.Debug("chunk summary published", zap.String("message_id", id))
}

func (o *Orchestrator) archive(ctx context.Context, summary counter.Summary, rows []counter.ReportRow, logger *zap.Logger) string {
	if o.deps.Archive == nil {
		return ""
	}
	body, err := json.Marshal(rows)
	if err != nil {
		logger.Warn("encode chunk archive", zap.Error(err))
		return ""
	}
	dir := summary.FinishedAt.UTC().Format("2006-01-02")
	if summary.RunID != "" {
		dir += "/" + summary.RunID
	}
	name := fmt.Sprintf("%s/chunk-%06d.json", dir, summary.Index)
	uri, err := o.deps.Archive.PutObject(ctx, name, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("archive chunk", zap.String("object", name), zap.Error(err))
		return ""
	}
	return uri
}
