// Package pacing shapes request timing to resemble human browsing cadence:
// randomized pre-fetch delays, exponential inter-round backoff with jitter,
// and simulated scroll/pointer interactions on browser sessions.
package pacing

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/johnlukespeight/Coemeta-Webscraper/config"
)

// Kind selects a delay range.
type Kind int

const (
	// PreFetch is the delay before each strategy invocation.
	PreFetch Kind = iota
	// Interaction is the pause between simulated scroll/pointer events.
	Interaction
)

// Controller produces randomized delays and simulated interactions.
// It is safe for concurrent use; all draws go through one guarded RNG so a
// fixed seed yields a reproducible delay sequence.
type Controller struct {
	cfg config.PacingConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewController creates a Controller. A zero seed falls back to wall-clock
// seeding; tests pass a fixed seed for determinism.
func NewController(cfg config.PacingConfig) *Controller {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Controller{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NextDelay draws a delay for the given kind from its configured uniform
// range, clamped to the pacing ceiling so keyword processing stays bounded.
func (c *Controller) NextDelay(kind Kind) time.Duration {
	var lo, hi time.Duration
	switch kind {
	case Interaction:
		lo, hi = c.cfg.InteractionMin, c.cfg.InteractionMax
	default:
		lo, hi = c.cfg.PreFetchMin, c.cfg.PreFetchMax
	}
	return c.clamp(c.uniform(lo, hi))
}

// Backoff returns the inter-round delay for the given retry round:
// min(cap, base^round + jitter), jitter drawn uniformly from the configured
// small interval. For a fixed seed, successive rounds are non-decreasing up
// to the cap.
func (c *Controller) Backoff(round int) time.Duration {
	if round < 0 {
		round = 0
	}
	base := time.Duration(math.Pow(c.cfg.BackoffBase, float64(round)) * float64(time.Second))
	if base > c.cfg.BackoffCap || base < 0 {
		return c.cfg.BackoffCap
	}
	d := base + c.uniform(c.cfg.InterRoundMin, c.cfg.InterRoundMax)
	if d > c.cfg.BackoffCap {
		return c.cfg.BackoffCap
	}
	return d
}

// SimulateInteraction issues randomized scroll events with reading pauses on
// the page, mirroring how a person skims a result list before the content is
// extracted. It is a no-op for a nil page (non-browser strategies) and
// returns early on context cancellation.
func (c *Controller) SimulateInteraction(ctx context.Context, page *rod.Page) {
	if page == nil {
		return
	}

	steps := 2 + c.intn(3)
	for i := 0; i < steps; i++ {
		delta := 200 + c.intn(400)
		if err := page.Mouse.Scroll(0, float64(delta), 2); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.NextDelay(Interaction)):
		}
	}

	// Occasional longer pause, as if reading a listing.
	if c.chance(0.7) {
		select {
		case <-ctx.Done():
		case <-time.After(c.clamp(2 * c.NextDelay(Interaction))):
		}
	}
}

func (c *Controller) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo + time.Duration(c.rng.Int63n(int64(hi-lo)))
}

func (c *Controller) intn(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Intn(n)
}

func (c *Controller) chance(p float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < p
}

func (c *Controller) clamp(d time.Duration) time.Duration {
	if c.cfg.Ceiling > 0 && d > c.cfg.Ceiling {
		return c.cfg.Ceiling
	}
	return d
}
