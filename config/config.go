package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

// Config holds all application configuration.
type Config struct {
	Target    TargetConfig
	Orch      OrchestratorConfig
	Pacing    PacingConfig
	Browser   BrowserConfig
	Batch     BatchConfig
	Sheet     SheetConfig
	Store     StoreConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// TargetConfig identifies the auction site being scraped.
type TargetConfig struct {
	// BaseURL is the site root the search URL is built from.
	BaseURL string // default: "https://shopgoodwill.com"

	// Proxy is an optional proxy URL applied to every strategy.
	Proxy string
}

// OrchestratorConfig controls the retry/backoff decision loop.
type OrchestratorConfig struct {
	// Strategies is the ordered strategy list, cheapest-to-detect first.
	Strategies []string // default: ["browser-stealth", "browser", "http"]

	// MaxRetries is the number of retry rounds over the strategy list.
	MaxRetries int // default: 3

	// MaxResults is the per-keyword record target.
	MaxResults int // default: 10

	// KeywordTimeout is the wall-clock ceiling for one keyword across all rounds.
	KeywordTimeout time.Duration // default: 5m

	// FetchTimeout is the deadline for a single strategy invocation.
	FetchTimeout time.Duration // default: 45s

	// HumanWait is the maximum blocking wait for the captcha intervention prompt.
	HumanWait time.Duration // default: 90s
}

// PacingConfig controls human-like request timing.
type PacingConfig struct {
	// PreFetchMin/Max bound the randomized delay before each strategy call.
	PreFetchMin time.Duration // default: 2s
	PreFetchMax time.Duration // default: 5s

	// InterRoundMin/Max bound the jitter interval added to the backoff delay.
	InterRoundMin time.Duration // default: 0s
	InterRoundMax time.Duration // default: 1s

	// InteractionMin/Max bound pauses between simulated scroll/pointer events.
	InteractionMin time.Duration // default: 1s
	InteractionMax time.Duration // default: 2500ms

	// BackoffBase is the exponential base for inter-round backoff.
	BackoffBase float64 // default: 5.0

	// BackoffCap is the upper bound on any inter-round backoff delay.
	BackoffCap time.Duration // default: 60s

	// Ceiling is the hard upper bound on any single pacing delay.
	Ceiling time.Duration // default: 20s

	// Seed fixes the RNG for reproducible runs; 0 means time-based.
	Seed int64
}

// BrowserConfig controls the Rod browser sessions.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Bin overrides the Chromium binary path.
	Bin string

	// SessionMaxUses retires a browser session after this many keywords.
	SessionMaxUses int // default: 25

	// SessionMaxAge retires a browser session after this long.
	SessionMaxAge time.Duration // default: 45m

	// BlockedResourceTypes lists resource types blocked during navigation.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// BatchConfig controls concurrent keyword processing.
type BatchConfig struct {
	// Workers is the maximum number of keywords processed concurrently.
	Workers int // default: 2

	// SiteRPS is the shared request budget toward the target site.
	SiteRPS float64 // default: 0.5

	// SiteBurst is the burst allowance on the shared budget.
	SiteBurst int // default: 1

	// CacheTTL is how long a keyword's outcome is reused without rescraping.
	CacheTTL time.Duration // default: 30m

	// CacheSize is the maximum number of cached outcomes.
	CacheSize int // default: 256
}

// SheetConfig controls the spreadsheet (CSV workbook) sink.
type SheetConfig struct {
	// Dir is the workbook directory holding KEYWORDS.csv and RESULTS.csv.
	Dir string // default: "./sheets"
}

// StoreConfig controls the embedded analytical store.
type StoreConfig struct {
	// Path is the SQLite database file; empty disables the store.
	Path string // default: "auction_data.db"
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-client API rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 5
}

// WebhookConfig controls the batch-completion notification.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL: envOr("COEMETA_BASE_URL", "https://shopgoodwill.com"),
			Proxy:   os.Getenv("COEMETA_PROXY"),
		},
		Orch: OrchestratorConfig{
			Strategies:     envSliceOr("COEMETA_STRATEGIES", []string{"browser-stealth", "browser", "http"}),
			MaxRetries:     envIntOr("COEMETA_MAX_RETRIES", 3),
			MaxResults:     envIntOr("COEMETA_MAX_RESULTS", 10),
			KeywordTimeout: envDurationOr("COEMETA_KEYWORD_TIMEOUT", 5*time.Minute),
			FetchTimeout:   envDurationOr("COEMETA_FETCH_TIMEOUT", 45*time.Second),
			HumanWait:      envDurationOr("COEMETA_HUMAN_WAIT", 90*time.Second),
		},
		Pacing: PacingConfig{
			PreFetchMin:    envDurationOr("COEMETA_PREFETCH_MIN", 2*time.Second),
			PreFetchMax:    envDurationOr("COEMETA_PREFETCH_MAX", 5*time.Second),
			InterRoundMin:  envDurationOr("COEMETA_INTERROUND_MIN", 0),
			InterRoundMax:  envDurationOr("COEMETA_INTERROUND_MAX", time.Second),
			InteractionMin: envDurationOr("COEMETA_INTERACTION_MIN", time.Second),
			InteractionMax: envDurationOr("COEMETA_INTERACTION_MAX", 2500*time.Millisecond),
			BackoffBase:    envFloatOr("COEMETA_BACKOFF_BASE", 5.0),
			BackoffCap:     envDurationOr("COEMETA_BACKOFF_CAP", 60*time.Second),
			Ceiling:        envDurationOr("COEMETA_PACING_CEILING", 20*time.Second),
			Seed:           int64(envIntOr("COEMETA_PACING_SEED", 0)),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("COEMETA_HEADLESS", true),
			NoSandbox:      envBoolOr("COEMETA_NO_SANDBOX", false),
			Bin:            os.Getenv("COEMETA_BROWSER_BIN"),
			SessionMaxUses: envIntOr("COEMETA_SESSION_MAX_USES", 25),
			SessionMaxAge:  envDurationOr("COEMETA_SESSION_MAX_AGE", 45*time.Minute),
			BlockedResourceTypes: envSliceOr("COEMETA_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Batch: BatchConfig{
			Workers:   envIntOr("COEMETA_WORKERS", 2),
			SiteRPS:   envFloatOr("COEMETA_SITE_RPS", 0.5),
			SiteBurst: envIntOr("COEMETA_SITE_BURST", 1),
			CacheTTL:  envDurationOr("COEMETA_CACHE_TTL", 30*time.Minute),
			CacheSize: envIntOr("COEMETA_CACHE_SIZE", 256),
		},
		Sheet: SheetConfig{
			Dir: envOr("COEMETA_SHEET_DIR", "./sheets"),
		},
		Store: StoreConfig{
			Path: envOr("COEMETA_DB_PATH", "auction_data.db"),
		},
		Server: ServerConfig{
			Host: envOr("COEMETA_HOST", "0.0.0.0"),
			Port: envIntOr("COEMETA_PORT", 8080),
			Mode: envOr("COEMETA_MODE", "release"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("COEMETA_AUTH_ENABLED", false),
			APIKeys: envSliceOr("COEMETA_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("COEMETA_RATE_RPS", 2.0),
			Burst:             envIntOr("COEMETA_RATE_BURST", 5),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("COEMETA_WEBHOOK_URL"),
			Secret: os.Getenv("COEMETA_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("COEMETA_LOG_LEVEL", "info"),
			Format: envOr("COEMETA_LOG_FORMAT", "json"),
		},
	}
}

// knownStrategies is the closed set of strategy names the factory accepts.
var knownStrategies = map[string]struct{}{
	"browser-stealth": {},
	"browser":         {},
	"http":            {},
}

// Validate checks thresholds and the strategy list. Any violation is a
// CONFIGURATION_ERROR, which aborts a scrape immediately.
func (c *Config) Validate() error {
	if len(c.Orch.Strategies) == 0 {
		return models.NewScrapeError(models.ErrCodeConfiguration, "strategy list is empty", nil)
	}
	for _, name := range c.Orch.Strategies {
		if _, ok := knownStrategies[name]; !ok {
			return models.NewScrapeError(models.ErrCodeConfiguration,
				fmt.Sprintf("unknown strategy %q", name), nil)
		}
	}
	if c.Orch.MaxRetries <= 0 {
		return models.NewScrapeError(models.ErrCodeConfiguration, "max retries must be positive", nil)
	}
	if c.Orch.MaxResults <= 0 {
		return models.NewScrapeError(models.ErrCodeConfiguration, "max results must be positive", nil)
	}
	if c.Pacing.PreFetchMax < c.Pacing.PreFetchMin || c.Pacing.InteractionMax < c.Pacing.InteractionMin {
		return models.NewScrapeError(models.ErrCodeConfiguration, "delay range max below min", nil)
	}
	if c.Pacing.BackoffBase <= 1 {
		return models.NewScrapeError(models.ErrCodeConfiguration, "backoff base must be greater than 1", nil)
	}
	if c.Batch.Workers <= 0 {
		return models.NewScrapeError(models.ErrCodeConfiguration, "worker limit must be positive", nil)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
