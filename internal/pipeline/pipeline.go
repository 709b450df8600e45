// Package pipeline runs the end-to-end deal search: fan out one query
// to every configured source, merge the listings, and hand them to the
// analyzer. One provider failing never sinks a run; results carry the
// failures alongside whatever the healthy providers returned.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gopforever/sportscardbot/internal/analysis"
	"github.com/gopforever/sportscardbot/internal/model"
	"github.com/gopforever/sportscardbot/internal/provider"
)

// ErrInsufficientData marks a run whose sold comparables could not
// support a market value estimate. The returned Result still carries
// the fetch counts so callers can report what was found.
var ErrInsufficientData = errors.New("insufficient sold comparables for market value")

// Failure records one provider's error without aborting the run.
type Failure struct {
	Provider string
	Err      error
}

// Result is the outcome of one query run.
type Result struct {
	Query         model.SearchQuery
	Opportunities []model.Opportunity
	Estimate      model.MarketValueEstimate
	ActiveCount   int
	SoldCount     int
	Failures      []Failure
}

// Engine coordinates sources and the analyzer.
type Engine struct {
	sources  []provider.Source
	analyzer *analysis.Analyzer
	timeout  time.Duration
	pacer    *rate.Limiter
}

// New creates an engine over the given sources. Unavailable sources are
// skipped at run time, not here, so credentials can arrive later.
func New(sources []provider.Source, cfg analysis.Config) *Engine {
	return &Engine{
		sources:  sources,
		analyzer: analysis.New(cfg),
		timeout:  2 * time.Minute,
		pacer:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// SetTimeout bounds each provider's fetch work per run.
func (e *Engine) SetTimeout(d time.Duration) { e.timeout = d }

// SetPacing overrides the delay between batch queries.
func (e *Engine) SetPacing(d time.Duration) {
	e.pacer = rate.NewLimiter(rate.Every(d), 1)
}

type fetchOutcome struct {
	name   string
	active []model.ListingRecord
	sold   []model.ListingRecord
	err    error
}

// FindOpportunities runs one query across every available source. The
// error is ErrInsufficientData when listings were fetched but the sold
// comps can't support an estimate; the Result is still populated then.
func (e *Engine) FindOpportunities(ctx context.Context, q model.SearchQuery) (*Result, error) {
	var ready []provider.Source
	for _, src := range e.sources {
		if src.Available() {
			ready = append(ready, src)
		}
	}
	if len(ready) == 0 {
		return nil, errors.New("no providers available")
	}

	outcomes := make(chan fetchOutcome, len(ready))
	var wg sync.WaitGroup
	for _, src := range ready {
		wg.Add(1)
		go func(src provider.Source) {
			defer wg.Done()
			outcomes <- e.fetchOne(ctx, src, q)
		}(src)
	}
	wg.Wait()
	close(outcomes)

	result := &Result{Query: q}
	var active, sold []model.ListingRecord
	for out := range outcomes {
		active = append(active, out.active...)
		sold = append(sold, out.sold...)
		if out.err != nil {
			result.Failures = append(result.Failures, Failure{Provider: out.name, Err: out.err})
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(result.Failures) == len(ready) && len(active) == 0 && len(sold) == 0 {
		return nil, fmt.Errorf("all providers failed: %w", result.Failures[0].Err)
	}

	active = dedupe(active)
	sold = dedupe(sold)
	result.ActiveCount = len(active)
	result.SoldCount = len(sold)

	est, ok := e.analyzer.MarketValue(sold)
	result.Estimate = est
	if !ok {
		return result, ErrInsufficientData
	}

	result.Opportunities = e.analyzer.Analyze(active, sold)
	return result, nil
}

// fetchOne pulls sold comps first, then live listings. A source that
// fails midway still contributes what it fetched.
func (e *Engine) fetchOne(ctx context.Context, src provider.Source, q model.SearchQuery) fetchOutcome {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out := fetchOutcome{name: src.Name()}
	out.sold, out.err = src.FetchSold(ctx, q)
	if out.err != nil {
		return out
	}
	out.active, out.err = src.FetchActive(ctx, q)
	return out
}

// AnalyzeKeywords runs a batch of keyword queries sequentially, paced so
// the batch doesn't burn provider quota in a burst. Keywords whose run
// fails outright are logged and skipped; insufficient-data runs are kept
// so reports can show what was searched.
func (e *Engine) AnalyzeKeywords(ctx context.Context, keywords []string, base model.SearchQuery) ([]*Result, error) {
	var results []*Result
	for _, kw := range keywords {
		if err := e.pacer.Wait(ctx); err != nil {
			return results, err
		}

		q := base
		q.Keywords = kw
		res, err := e.FindOpportunities(ctx, q)
		switch {
		case err == nil || errors.Is(err, ErrInsufficientData):
			results = append(results, res)
		case ctx.Err() != nil:
			return results, ctx.Err()
		default:
			log.Printf("pipeline: %q: %v", kw, err)
		}
	}
	return results, nil
}

// dedupe drops records repeating an already-seen ID. The same eBay item
// can arrive from both the API client and the scraper.
func dedupe(records []model.ListingRecord) []model.ListingRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, rec := range records {
		if rec.ID != "" && seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		out = append(out, rec)
	}
	return out
}
