package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/johnlukespeight/Coemeta-Webscraper/config"
	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

const (
	callerIdleTTL = time.Hour
	sweepEvery    = 5 * time.Minute
)

// Throttle is a per-caller token bucket in front of the scrape endpoints.
// Scrapes are expensive (each one drives a browser against the target site),
// so the per-caller budget is deliberately small; the shared site budget
// inside the orchestrator still caps total outbound pressure.
//
// Idle callers are swept out on the request path once per sweepEvery, so the
// caller table stays bounded without a background goroutine.
type Throttle struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	callers   map[string]*caller
	lastSweep time.Time
}

type caller struct {
	bucket *rate.Limiter
	seen   time.Time
}

// NewThrottle builds a Throttle from the rate-limit configuration.
func NewThrottle(cfg config.RateLimitConfig) *Throttle {
	return &Throttle{
		limit:     rate.Limit(cfg.RequestsPerSecond),
		burst:     cfg.Burst,
		callers:   make(map[string]*caller),
		lastSweep: time.Now(),
	}
}

// Handler returns the gin middleware. Identity is the authenticated API key
// when Auth ran, otherwise the client IP.
func (t *Throttle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key, ok := c.Get(IdentityKey); ok {
			identity = key.(string)
		}

		if !t.allow(identity, time.Now()) {
			c.Header("Retry-After", strconv.Itoa(t.retryAfterSeconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "scrape budget exceeded for this caller",
				},
			})
			return
		}

		c.Next()
	}
}

// allow takes one token from the caller's bucket, creating it on first use.
func (t *Throttle) allow(identity string, now time.Time) bool {
	t.mu.Lock()

	if now.Sub(t.lastSweep) >= sweepEvery {
		t.sweep(now)
	}

	entry, ok := t.callers[identity]
	if !ok {
		entry = &caller{bucket: rate.NewLimiter(t.limit, t.burst)}
		t.callers[identity] = entry
	}
	entry.seen = now
	bucket := entry.bucket

	t.mu.Unlock()

	return bucket.Allow()
}

// sweep drops callers idle longer than callerIdleTTL. Caller must hold mu.
func (t *Throttle) sweep(now time.Time) {
	cutoff := now.Add(-callerIdleTTL)
	for id, entry := range t.callers {
		if entry.seen.Before(cutoff) {
			delete(t.callers, id)
		}
	}
	t.lastSweep = now
}

// retryAfterSeconds estimates when the next token is available. A refill
// rate of at least one per second rounds to the minimum hint of 1s.
func (t *Throttle) retryAfterSeconds() int {
	if t.limit <= 0 {
		return 1
	}
	secs := int(1 / float64(t.limit))
	if secs < 1 {
		secs = 1
	}
	return secs
}
