package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scrape loop.
type Metrics struct {
	Registry       *prometheus.Registry
	AttemptsTotal  *prometheus.CounterVec
	OutcomesTotal  *prometheus.CounterVec
	ScrapeDuration prometheus.Histogram
	RecordsTotal   prometheus.Counter
	SkippedTotal   prometheus.Counter
	RetriesTotal   prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fetch_attempts_total",
			Help: "Fetch attempts by strategy and blocking verdict.",
		},
		[]string{"strategy", "verdict"},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_outcomes_total",
			Help: "Keyword outcomes by terminal status.",
		},
		[]string{"status"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_keyword_duration_seconds",
			Help:    "Wall-clock time to resolve one keyword.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Validated auction records emitted.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_listings_skipped_total",
			Help: "Listings dropped for missing required fields.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retry_rounds_total",
			Help: "Inter-round backoff sleeps taken.",
		},
	)

	registry.MustRegister(attempts, outcomes, duration, records, skipped, retries)

	return &Metrics{
		Registry:       registry,
		AttemptsTotal:  attempts,
		OutcomesTotal:  outcomes,
		ScrapeDuration: duration,
		RecordsTotal:   records,
		SkippedTotal:   skipped,
		RetriesTotal:   retries,
	}
}

// The observe helpers are nil-safe so tests can run without a registry.

func (m *Metrics) observeAttempt(strategy, verdict string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(strategy, verdict).Inc()
}

func (m *Metrics) observeOutcome(status string, d time.Duration, records, skipped int) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(status).Inc()
	m.ScrapeDuration.Observe(d.Seconds())
	m.RecordsTotal.Add(float64(records))
	m.SkippedTotal.Add(float64(skipped))
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}
