package models

import "time"

// Verdict classifies a fetched payload with respect to blocking signals.
type Verdict string

const (
	VerdictClean       Verdict = "clean"
	VerdictCaptcha     Verdict = "captcha-detected"
	VerdictBlocked     Verdict = "blocked"
	VerdictRateLimited Verdict = "rate-limited"
	VerdictUnknown     Verdict = "unknown-error"
)

// Status is the terminal state of one keyword's scrape.
type Status string

const (
	// StatusSuccess means extraction yielded at least maxResults records.
	StatusSuccess Status = "success"
	// StatusPartial means extraction yielded some records, fewer than maxResults.
	StatusPartial Status = "partial"
	// StatusExhausted means every strategy and retry round completed without
	// a clean extraction (or the keyword deadline/cancellation hit first).
	StatusExhausted Status = "exhausted"
	// StatusFatal means a non-recoverable error aborted the scrape immediately.
	StatusFatal Status = "fatal"
)

// Payload is the raw result of one fetch strategy invocation.
type Payload struct {
	HTML       string
	StatusCode int
	FinalURL   string
	Strategy   string
	FetchedAt  time.Time
}

// FetchAttempt records one strategy invocation for the diagnostic trail.
type FetchAttempt struct {
	Strategy  string        `json:"strategy"`
	Round     int           `json:"round"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Verdict   Verdict       `json:"verdict"`
	Err       string        `json:"error,omitempty"`
}

// AuctionRecord is one normalized auction listing.
// Description is non-empty and CurrentPrice non-negative after normalization;
// listings failing that are dropped by the extraction pipeline, never emitted.
type AuctionRecord struct {
	Keyword      string    `json:"keyword"`
	Description  string    `json:"item_description"`
	EndDate      string    `json:"auction_end_date"`
	CurrentPrice float64   `json:"current_price"`
	ImageURL     string    `json:"image_url,omitempty"`
	SourceURL    string    `json:"source_url,omitempty"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// ScrapeOutcome is the final, immutable result of processing one keyword.
type ScrapeOutcome struct {
	Keyword     string          `json:"keyword"`
	Records     []AuctionRecord `json:"records"`
	Status      Status          `json:"status"`
	Trail       []FetchAttempt  `json:"trail"`
	LastVerdict Verdict         `json:"last_verdict,omitempty"`
	Skipped     int             `json:"skipped_listings"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
}

// Succeeded reports whether the outcome carries any usable records.
func (o *ScrapeOutcome) Succeeded() bool {
	return o.Status == StatusSuccess || o.Status == StatusPartial
}
