// Package scheduler triggers chunk imports on a cron schedule, walking the
// report one chunk per tick and starting over once it is exhausted.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// DefaultImportCron runs one chunk every fifteen minutes.
const DefaultImportCron = "@every 15m"

// ChunkRunner imports a single chunk.
type ChunkRunner interface {
	RunChunk(ctx context.Context, index int) (counter.Summary, error)
}

// Purger removes expired cache entries.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Config holds cron expressions and per-run limits.
type Config struct {
	ImportCron string
	// PurgeCron is only used when a Purger is supplied.
	PurgeCron  string
	RunTimeout time.Duration
}

// Scheduler serializes chunk imports. Only one import runs at a time so two
// runs never write overlapping chunks concurrently.
type Scheduler struct {
	cron   *cron.Cron
	runner ChunkRunner
	purger Purger
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	next int
}

// New registers the import job and, when purger is non-nil, the purge job.
func New(cfg Config, runner ChunkRunner, purger Purger, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler requires a chunk runner")
	}
	if cfg.ImportCron == "" {
		cfg.ImportCron = DefaultImportCron
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{cron: cron.New(), runner: runner, purger: purger, cfg: cfg, logger: logger}

	if _, err := s.cron.AddFunc(cfg.ImportCron, s.runImport); err != nil {
		return nil, &counter.ConfigurationError{Field: "schedule.import_cron", Reason: err.Error()}
	}
	if purger != nil && cfg.PurgeCron != "" {
		if _, err := s.cron.AddFunc(cfg.PurgeCron, s.runPurge); err != nil {
			return nil, &counter.ConfigurationError{Field: "schedule.purge_cron", Reason: err.Error()}
		}
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("import_cron", s.cfg.ImportCron))
}

// Stop halts the cron and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the chunk index the next tick will import.
func (s *Scheduler) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Tick imports the next chunk. On success the index advances, or wraps to 0
// when the chunk was the last one. On failure the index is kept so the next
// tick retries it.
func (s *Scheduler) Tick(ctx context.Context) (counter.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, err := s.runner.RunChunk(ctx, s.next)
	if err != nil {
		return counter.Summary{}, err
	}
	if summary.Exhausted {
		s.next = 0
	} else {
		s.next++
	}
	return summary, nil
}

func (s *Scheduler) runImport() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()
	index := s.Next()
	summary, err := s.Tick(ctx)
	if err != nil {
		s.logger.Error("scheduled chunk import failed", zap.Int("index", index), zap.Error(err))
		return
	}
	s.logger.Info("scheduled chunk import finished",
		zap.Int("index", summary.Index),
		zap.Int("rows", summary.Rows),
		zap.Bool("exhausted", summary.Exhausted),
	)
}

func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()
	n, err := s.purger.Purge(ctx)
	if err != nil {
		s.logger.Error("chunk cache purge failed", zap.Error(err))
		return
	}
	s.logger.Info("chunk cache purged", zap.Int64("removed", n))
}
