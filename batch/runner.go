// Package batch fans a keyword list out over a bounded worker pool. Workers
// share one per-site request budget, so adding workers increases keyword
// throughput without increasing pressure on the target.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
	"github.com/johnlukespeight/Coemeta-Webscraper/sink"
)

// Scraper resolves one keyword to a terminal outcome.
type Scraper interface {
	Scrape(ctx context.Context, keyword string, maxResults, maxRetries int) models.ScrapeOutcome
}

// Notifier is told when a batch completes. The webhook client satisfies it.
type Notifier interface {
	NotifyBatchCompleted(ctx context.Context, summary Summary)
}

// Options tunes a Runner.
type Options struct {
	MaxResults int
	MaxRetries int

	// CacheTTL/CacheSize bound the outcome cache. A keyword scraped within
	// the TTL is answered from cache instead of hitting the site again.
	CacheTTL  time.Duration
	CacheSize int
}

// Summary aggregates one batch run.
type Summary struct {
	SessionID string                          `json:"session_id,omitempty"`
	Keywords  int                             `json:"keywords"`
	Succeeded int                             `json:"succeeded"`
	Records   int                             `json:"records"`
	StartedAt time.Time                       `json:"started_at"`
	Duration  time.Duration                   `json:"duration"`
	Outcomes  map[string]models.ScrapeOutcome `json:"outcomes"`
}

// Runner processes keyword batches. It owns one Scraper per worker; a
// scraper (and the browser session behind it) is checked out for a single
// keyword at a time and never shared between concurrent workers.
type Runner struct {
	scrapers []Scraper
	sinks    sink.Sink
	store    *sink.Store
	notifier Notifier
	opts     Options

	cache *expirable.LRU[string, models.ScrapeOutcome]
}

// New builds a Runner. scrapers carries one entry per worker and sets the
// concurrency limit. sinks and store may be nil; store additionally journals
// the run as a scraping session when present.
func New(scrapers []Scraper, sinks sink.Sink, store *sink.Store, notifier Notifier, opts Options) (*Runner, error) {
	if len(scrapers) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeConfiguration, "at least one scraper is required", nil)
	}
	for _, s := range scrapers {
		if s == nil {
			return nil, models.NewScrapeError(models.ErrCodeConfiguration, "scraper must not be nil", nil)
		}
	}

	var cache *expirable.LRU[string, models.ScrapeOutcome]
	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		cache = expirable.NewLRU[string, models.ScrapeOutcome](opts.CacheSize, nil, opts.CacheTTL)
	}

	return &Runner{
		scrapers: scrapers,
		sinks:    sinks,
		store:    store,
		notifier: notifier,
		opts:     opts,
		cache:    cache,
	}, nil
}

// Run processes all keywords and returns the aggregated summary. Keywords
// run concurrently up to the worker limit; a failed keyword never aborts the
// batch, only context cancellation does.
func (r *Runner) Run(ctx context.Context, keywords []string) (Summary, error) {
	started := time.Now()

	summary := Summary{
		Keywords:  len(keywords),
		StartedAt: started,
		Outcomes:  make(map[string]models.ScrapeOutcome, len(keywords)),
	}

	if r.store != nil {
		id, err := r.store.StartSession(ctx, len(keywords))
		if err != nil {
			slog.Warn("session journal unavailable", "error", err)
		} else {
			summary.SessionID = id
		}
	}

	// Each worker goroutine checks a scraper out of the pool for the
	// duration of one keyword. SetLimit matches the pool size, so checkout
	// never blocks on anything but an in-flight keyword finishing.
	pool := make(chan Scraper, len(r.scrapers))
	for _, s := range r.scrapers {
		pool <- s
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(r.scrapers))

	for _, raw := range keywords {
		kw := models.SanitizeKeyword(raw)
		if kw == "" {
			continue
		}

		mu.Lock()
		_, alreadyQueued := summary.Outcomes[kw]
		if !alreadyQueued {
			summary.Outcomes[kw] = models.ScrapeOutcome{} // reserve to dedupe
		}
		mu.Unlock()
		if alreadyQueued {
			continue
		}

		g.Go(func() error {
			scraper := <-pool
			outcome := r.resolve(gctx, scraper, kw)
			pool <- scraper

			mu.Lock()
			summary.Outcomes[kw] = outcome
			mu.Unlock()

			if outcome.Succeeded() && r.sinks != nil {
				if err := r.sinks.WriteResults(gctx, kw, outcome.Records); err != nil {
					slog.Error("sink write failed", "keyword", kw, "error", err)
				}
			}

			// Only cancellation propagates; per-keyword failures are
			// already terminal outcomes.
			return gctx.Err()
		})
	}

	err := g.Wait()

	for _, outcome := range summary.Outcomes {
		if outcome.Succeeded() {
			summary.Succeeded++
			summary.Records += len(outcome.Records)
		}
	}
	summary.Duration = time.Since(started)

	if r.store != nil && summary.SessionID != "" {
		status := "completed"
		if err != nil {
			status = "canceled"
		}
		if ferr := r.store.FinishSession(context.WithoutCancel(ctx), summary.SessionID,
			summary.Succeeded, summary.Records, status); ferr != nil {
			slog.Warn("session journal update failed", "error", ferr)
		}
	}

	if r.notifier != nil {
		r.notifier.NotifyBatchCompleted(context.WithoutCancel(ctx), summary)
	}

	slog.Info("batch finished",
		"keywords", summary.Keywords,
		"succeeded", summary.Succeeded,
		"records", summary.Records,
		"duration", summary.Duration,
	)
	return summary, err
}

// resolve answers from the outcome cache when fresh, otherwise scrapes.
func (r *Runner) resolve(ctx context.Context, scraper Scraper, kw string) models.ScrapeOutcome {
	if r.cache != nil {
		if outcome, ok := r.cache.Get(kw); ok {
			slog.Debug("outcome served from cache", "keyword", kw)
			return outcome
		}
	}

	outcome := scraper.Scrape(ctx, kw, r.opts.MaxResults, r.opts.MaxRetries)

	if r.cache != nil && outcome.Succeeded() {
		r.cache.Add(kw, outcome)
	}
	return outcome
}
