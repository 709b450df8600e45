// Package refresh keeps provider caches warm by re-running the
// configured keyword queries on a schedule, so interactive runs hit
// fresh cache entries instead of burning rate limit.
package refresh

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gopforever/sportscardbot/internal/model"
	"github.com/gopforever/sportscardbot/internal/pipeline"
)

// DefaultSchedule re-warms twice per cache TTL.
const DefaultSchedule = "@every 15m"

// Engine is the slice of the pipeline the service drives.
type Engine interface {
	AnalyzeKeywords(ctx context.Context, keywords []string, base model.SearchQuery) ([]*pipeline.Result, error)
}

// Service periodically re-runs a fixed set of keyword queries.
type Service struct {
	engine   Engine
	keywords []string
	base     model.SearchQuery
	schedule string
	cron     *cron.Cron

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// New creates a refresh service over the given queries.
func New(engine Engine, keywords []string, base model.SearchQuery) *Service {
	return &Service{
		engine:   engine,
		keywords: keywords,
		base:     base,
		schedule: DefaultSchedule,
	}
}

// SetSchedule overrides the cron spec (standard 5-field or @every form).
func (s *Service) SetSchedule(spec string) { s.schedule = spec }

// Start begins the schedule. The first warm-up runs on the first tick,
// not immediately, so startup stays fast.
func (s *Service) Start(ctx context.Context) error {
	if len(s.keywords) == 0 {
		return fmt.Errorf("no keywords configured")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			log.Printf("refresh: warm-up failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	log.Printf("refresh: scheduled %d queries (%s)", len(s.keywords), s.schedule)
	return nil
}

// Stop halts the schedule. A warm-up already in flight finishes.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunOnce executes one warm-up pass over every configured keyword.
func (s *Service) RunOnce(ctx context.Context) error {
	start := time.Now()
	results, err := s.engine.AnalyzeKeywords(ctx, s.keywords, s.base)

	s.mu.Lock()
	s.lastRun = start
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		return err
	}

	deals := 0
	for _, res := range results {
		deals += len(res.Opportunities)
	}
	log.Printf("refresh: warmed %d queries in %s, %d deals live", len(results), time.Since(start).Round(time.Millisecond), deals)
	return nil
}

// LastRun reports the most recent warm-up and its outcome.
func (s *Service) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}
