// Package orchestrator owns the retry/backoff decision loop for a single
// keyword: it iterates the ordered strategy list, classifies each payload,
// escalates captchas to a resolver and then to a human operator, and
// guarantees a bounded terminal outcome for every call.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
	"github.com/johnlukespeight/Coemeta-Webscraper/pacing"
	"github.com/johnlukespeight/Coemeta-Webscraper/strategy"
)

// Classifier turns a fetched payload into a blocking verdict.
type Classifier interface {
	Classify(p *models.Payload) models.Verdict
}

// Extractor parses a clean payload into auction records.
type Extractor interface {
	Extract(p *models.Payload) ([]models.AuctionRecord, int, error)
}

// Pacer supplies the human-like delays used between operations.
type Pacer interface {
	NextDelay(kind pacing.Kind) time.Duration
	Backoff(round int) time.Duration
}

// CaptchaResolver attempts automated captcha resolution. It reports whether
// the challenge was cleared; false hands the problem to the human prompter.
type CaptchaResolver interface {
	Resolve(ctx context.Context, keyword string, p *models.Payload) bool
}

// HumanPrompter blocks until a human acknowledges solving the captcha or the
// wait budget runs out. A nil error means the operator acknowledged.
type HumanPrompter interface {
	Prompt(ctx context.Context, keyword string) error
}

// Options tunes a single Orchestrator.
type Options struct {
	// BaseURL is the site root search URLs are built from.
	BaseURL string

	// KeywordTimeout bounds the whole Scrape call; zero disables it.
	KeywordTimeout time.Duration

	// FetchTimeout bounds one strategy invocation; zero disables it.
	FetchTimeout time.Duration

	// Limiter, when set, is a shared per-site budget every fetch waits on.
	Limiter *rate.Limiter

	// Resolver and Prompter handle captcha escalation. Both optional: a nil
	// Resolver never resolves, a nil Prompter never acknowledges.
	Resolver CaptchaResolver
	Prompter HumanPrompter

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

// Orchestrator resolves keywords against the target site. Safe for
// concurrent use as long as the supplied strategies are.
type Orchestrator struct {
	strategies []strategy.Strategy
	classifier Classifier
	extractor  Extractor
	pacer      Pacer
	opts       Options
}

// New builds an Orchestrator over the ordered strategy list.
func New(strategies []strategy.Strategy, classifier Classifier, extractor Extractor, pacer Pacer, opts Options) (*Orchestrator, error) {
	if len(strategies) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeConfiguration, "strategy list is empty", nil)
	}
	if classifier == nil || extractor == nil || pacer == nil {
		return nil, models.NewScrapeError(models.ErrCodeConfiguration, "classifier, extractor and pacer are required", nil)
	}
	return &Orchestrator{
		strategies: strategies,
		classifier: classifier,
		extractor:  extractor,
		pacer:      pacer,
		opts:       opts,
	}, nil
}

// Scrape resolves one keyword to a terminal outcome. It never panics and
// never blocks past the keyword timeout: every path ends in success,
// partial, exhausted, or fatal.
func (o *Orchestrator) Scrape(ctx context.Context, keyword string, maxResults, maxRetries int) models.ScrapeOutcome {
	started := time.Now()
	kw := models.SanitizeKeyword(keyword)

	outcome := models.ScrapeOutcome{
		Keyword:   kw,
		StartedAt: started,
	}

	if kw == "" {
		return o.finish(outcome, started, models.StatusFatal, "", "keyword is empty after sanitization")
	}
	if maxResults <= 0 || maxRetries <= 0 {
		return o.finish(outcome, started, models.StatusFatal, "",
			fmt.Sprintf("invalid limits: maxResults=%d maxRetries=%d", maxResults, maxRetries))
	}

	if o.opts.KeywordTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.KeywordTimeout)
		defer cancel()
	}

	// Sessions rotate between keywords, not between attempts within one.
	defer o.recycleSessions()

	q := &strategy.Query{
		Keyword: kw,
		URL:     models.BuildSearchURL(o.opts.BaseURL, kw),
	}

	slog.Info("scrape started", "keyword", kw, "max_results", maxResults, "max_retries", maxRetries)

	humanPrompted := false

	for round := 0; round < maxRetries; round++ {
		for _, strat := range o.strategies {
			if err := o.wait(ctx, o.pacer.NextDelay(pacing.PreFetch)); err != nil {
				return o.finish(outcome, started, models.StatusExhausted, outcome.LastVerdict, "")
			}
			if o.opts.Limiter != nil {
				if err := o.opts.Limiter.Wait(ctx); err != nil {
					return o.finish(outcome, started, models.StatusExhausted, outcome.LastVerdict, "")
				}
			}

			payload, attempt := o.attempt(ctx, strat, q, round)
			outcome.Trail = append(outcome.Trail, attempt)
			outcome.LastVerdict = attempt.Verdict

			verdict := attempt.Verdict

			if verdict == models.VerdictCaptcha {
				refetched, refetchAttempt, prompted := o.escalateCaptcha(ctx, strat, q, payload, round, humanPrompted)
				humanPrompted = humanPrompted || prompted
				if refetchAttempt != nil {
					outcome.Trail = append(outcome.Trail, *refetchAttempt)
					outcome.LastVerdict = refetchAttempt.Verdict
					verdict = refetchAttempt.Verdict
					payload = refetched
				}
			}

			if verdict != models.VerdictClean {
				slog.Debug("attempt failed",
					"keyword", kw, "strategy", strat.Name(), "round", round, "verdict", verdict)
				continue
			}

			records, skipped, xerr := o.extractor.Extract(payload)
			outcome.Skipped += skipped
			if xerr != nil {
				slog.Warn("extraction failed", "keyword", kw, "strategy", strat.Name(), "error", xerr)
				continue
			}
			if len(records) == 0 {
				// A clean page with nothing extractable is not a blocking
				// signal; try the next strategy in case the markup differs.
				continue
			}

			for i := range records {
				records[i].Keyword = kw
			}
			status := models.StatusPartial
			if len(records) >= maxResults {
				records = records[:maxResults]
				status = models.StatusSuccess
			}
			outcome.Records = records
			return o.finish(outcome, started, status, models.VerdictClean, "")
		}

		if round < maxRetries-1 {
			o.opts.Metrics.observeRetry()
			backoff := o.pacer.Backoff(round)
			slog.Info("round exhausted, backing off",
				"keyword", kw, "round", round, "backoff", backoff)
			if err := o.wait(ctx, backoff); err != nil {
				break
			}
		}
	}

	return o.finish(outcome, started, models.StatusExhausted, outcome.LastVerdict, "")
}

// attempt performs one strategy invocation and classifies its payload.
func (o *Orchestrator) attempt(ctx context.Context, strat strategy.Strategy, q *strategy.Query, round int) (*models.Payload, models.FetchAttempt) {
	attempt := models.FetchAttempt{
		Strategy:  strat.Name(),
		Round:     round,
		StartedAt: time.Now(),
	}

	fctx := ctx
	if o.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, o.opts.FetchTimeout)
		defer cancel()
	}

	payload, err := strat.Fetch(fctx, q)
	attempt.Duration = time.Since(attempt.StartedAt)

	if err != nil {
		attempt.Verdict = models.VerdictUnknown
		attempt.Err = err.Error()
	} else {
		attempt.Verdict = o.classifier.Classify(payload)
	}

	o.opts.Metrics.observeAttempt(attempt.Strategy, string(attempt.Verdict))
	return payload, attempt
}

// escalateCaptcha runs the captcha ladder for one attempt: automated
// resolution first, then (at most once per keyword) the human prompt. When
// either clears the challenge the same strategy is refetched once and the
// new payload reclassified. Returns the refetch payload and attempt if a
// refetch happened, plus whether the human was prompted.
func (o *Orchestrator) escalateCaptcha(ctx context.Context, strat strategy.Strategy, q *strategy.Query, payload *models.Payload, round int, alreadyPrompted bool) (*models.Payload, *models.FetchAttempt, bool) {
	resolved := false
	prompted := false

	if o.opts.Resolver != nil {
		resolved = o.opts.Resolver.Resolve(ctx, q.Keyword, payload)
	}

	if !resolved && !alreadyPrompted && o.opts.Prompter != nil {
		prompted = true
		if err := o.opts.Prompter.Prompt(ctx, q.Keyword); err != nil {
			slog.Warn("human captcha intervention failed", "keyword", q.Keyword, "error", err)
			return nil, nil, prompted
		}
		resolved = true
	}

	if !resolved {
		return nil, nil, prompted
	}

	payload, attempt := o.attempt(ctx, strat, q, round)
	return payload, &attempt, prompted
}

// wait sleeps for d or returns the context error, whichever comes first.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// recycleSessions rotates any strategy session that has grown stale or
// unhealthy, so the next keyword starts from a fresh fingerprint.
func (o *Orchestrator) recycleSessions() {
	for _, s := range o.strategies {
		if r, ok := s.(strategy.Recycler); ok {
			r.Recycle()
		}
	}
}

// finish stamps the terminal fields and emits the outcome log and metrics.
func (o *Orchestrator) finish(outcome models.ScrapeOutcome, started time.Time, status models.Status, verdict models.Verdict, fatalMsg string) models.ScrapeOutcome {
	outcome.Status = status
	outcome.Duration = time.Since(started)
	if verdict != "" {
		outcome.LastVerdict = verdict
	}
	if fatalMsg != "" {
		outcome.Trail = append(outcome.Trail, models.FetchAttempt{
			StartedAt: started,
			Verdict:   models.VerdictUnknown,
			Err:       fatalMsg,
		})
	}

	o.opts.Metrics.observeOutcome(string(status), outcome.Duration, len(outcome.Records), outcome.Skipped)

	slog.Info("scrape finished",
		"keyword", outcome.Keyword,
		"status", status,
		"records", len(outcome.Records),
		"skipped", outcome.Skipped,
		"attempts", len(outcome.Trail),
		"duration", outcome.Duration,
	)
	return outcome
}
