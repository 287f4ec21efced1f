package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "https://shopgoodwill.com", cfg.Target.BaseURL)
	assert.Equal(t, []string{"browser-stealth", "browser", "http"}, cfg.Orch.Strategies)
	assert.Equal(t, 3, cfg.Orch.MaxRetries)
	assert.Equal(t, 10, cfg.Orch.MaxResults)
	assert.Equal(t, 5*time.Minute, cfg.Orch.KeywordTimeout)
	assert.Equal(t, 5.0, cfg.Pacing.BackoffBase)
	assert.Equal(t, 60*time.Second, cfg.Pacing.BackoffCap)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Batch.Workers)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("COEMETA_BASE_URL", "https://staging.example.com")
	t.Setenv("COEMETA_STRATEGIES", "http, browser")
	t.Setenv("COEMETA_MAX_RETRIES", "5")
	t.Setenv("COEMETA_KEYWORD_TIMEOUT", "90s")
	t.Setenv("COEMETA_HEADLESS", "false")
	t.Setenv("COEMETA_BACKOFF_BASE", "2.5")

	cfg := Load()

	assert.Equal(t, "https://staging.example.com", cfg.Target.BaseURL)
	assert.Equal(t, []string{"http", "browser"}, cfg.Orch.Strategies)
	assert.Equal(t, 5, cfg.Orch.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Orch.KeywordTimeout)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 2.5, cfg.Pacing.BackoffBase)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("COEMETA_MAX_RETRIES", "lots")
	t.Setenv("COEMETA_KEYWORD_TIMEOUT", "whenever")

	cfg := Load()

	assert.Equal(t, 3, cfg.Orch.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Orch.KeywordTimeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Load()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty strategies", func(c *Config) { c.Orch.Strategies = nil }},
		{"unknown strategy", func(c *Config) { c.Orch.Strategies = []string{"carrier-pigeon"} }},
		{"zero retries", func(c *Config) { c.Orch.MaxRetries = 0 }},
		{"negative results", func(c *Config) { c.Orch.MaxResults = -1 }},
		{"inverted delay range", func(c *Config) { c.Pacing.PreFetchMax = c.Pacing.PreFetchMin - time.Second }},
		{"backoff base too small", func(c *Config) { c.Pacing.BackoffBase = 1.0 }},
		{"zero workers", func(c *Config) { c.Batch.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			se, ok := err.(*models.ScrapeError)
			require.True(t, ok)
			assert.Equal(t, models.ErrCodeConfiguration, se.Code)
			assert.True(t, models.IsFatal(err))
		})
	}
}
