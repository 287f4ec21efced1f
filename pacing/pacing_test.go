package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/johnlukespeight/Coemeta-Webscraper/config"
)

func testConfig() config.PacingConfig {
	return config.PacingConfig{
		PreFetchMin:    2 * time.Second,
		PreFetchMax:    5 * time.Second,
		InterRoundMin:  0,
		InterRoundMax:  time.Second,
		InteractionMin: time.Second,
		InteractionMax: 2500 * time.Millisecond,
		BackoffBase:    5.0,
		BackoffCap:     60 * time.Second,
		Ceiling:        20 * time.Second,
		Seed:           42,
	}
}

func TestNextDelayWithinRange(t *testing.T) {
	t.Parallel()

	c := NewController(testConfig())
	for i := 0; i < 200; i++ {
		d := c.NextDelay(PreFetch)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
	for i := 0; i < 200; i++ {
		d := c.NextDelay(Interaction)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}

func TestNextDelayRespectsCeiling(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PreFetchMin = 30 * time.Second
	cfg.PreFetchMax = 40 * time.Second

	c := NewController(cfg)
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, c.NextDelay(PreFetch), cfg.Ceiling)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	c := NewController(testConfig())

	// base 5: round 0 -> ~1s, round 1 -> ~5s, round 2 -> ~25s, round 3 -> capped.
	prev := time.Duration(0)
	for round := 0; round < 3; round++ {
		d := c.Backoff(round)
		assert.Greater(t, d, prev, "backoff must grow with the round number")
		assert.LessOrEqual(t, d, 60*time.Second)
		prev = d
	}
	assert.Equal(t, 60*time.Second, c.Backoff(3))
	assert.Equal(t, 60*time.Second, c.Backoff(10))
}

func TestBackoffNegativeRound(t *testing.T) {
	t.Parallel()

	c := NewController(testConfig())
	// Negative rounds are clamped to round zero.
	d := c.Backoff(-5)
	assert.GreaterOrEqual(t, d, time.Second)
	assert.LessOrEqual(t, d, 2*time.Second)
}

func TestFixedSeedReproducible(t *testing.T) {
	t.Parallel()

	a := NewController(testConfig())
	b := NewController(testConfig())

	for i := 0; i < 50; i++ {
		assert.Equal(t, a.NextDelay(PreFetch), b.NextDelay(PreFetch))
	}
}

func TestSimulateInteractionNilPage(t *testing.T) {
	t.Parallel()

	c := NewController(testConfig())
	// Must return immediately for non-browser strategies.
	done := make(chan struct{})
	go func() {
		c.SimulateInteraction(context.Background(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SimulateInteraction blocked on a nil page")
	}
}
