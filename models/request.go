package models

// ScrapeRequest is the API request body for a single-keyword scrape.
type ScrapeRequest struct {
	Keyword    string `json:"keyword" binding:"required"`
	MaxResults int    `json:"max_results"`
	MaxRetries int    `json:"max_retries"`
}

// Defaults fills unset request fields with the given configured values.
func (r *ScrapeRequest) Defaults(maxResults, maxRetries int) {
	if r.MaxResults <= 0 {
		r.MaxResults = maxResults
	}
	if r.MaxRetries <= 0 {
		r.MaxRetries = maxRetries
	}
}

// ScrapeResponse is the API response envelope.
type ScrapeResponse struct {
	Success bool           `json:"success"`
	Outcome *ScrapeOutcome `json:"outcome,omitempty"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}
