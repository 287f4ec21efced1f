// Command coemeta runs a full batch: read keywords from the workbook,
// scrape each one, and persist results to the workbook and the store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/time/rate"

	"github.com/johnlukespeight/Coemeta-Webscraper/batch"
	"github.com/johnlukespeight/Coemeta-Webscraper/config"
	"github.com/johnlukespeight/Coemeta-Webscraper/detect"
	"github.com/johnlukespeight/Coemeta-Webscraper/extract"
	"github.com/johnlukespeight/Coemeta-Webscraper/models"
	"github.com/johnlukespeight/Coemeta-Webscraper/orchestrator"
	"github.com/johnlukespeight/Coemeta-Webscraper/pacing"
	"github.com/johnlukespeight/Coemeta-Webscraper/sink"
	"github.com/johnlukespeight/Coemeta-Webscraper/strategy"
	"github.com/johnlukespeight/Coemeta-Webscraper/webhook"
)

// CLI flags
var (
	keywordsFlag = flag.String("keywords", "", "comma-separated keywords (overrides the keyword sheet)")
	headful      = flag.Bool("headful", false, "run the browser with a visible window (enables captcha handoff)")
)

func main() {
	flag.Parse()

	// ── 1. Load and validate configuration ──────────────────────────
	cfg := config.Load()
	if *headful {
		cfg.Browser.Headless = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("coemeta batch starting",
		"strategies", cfg.Orch.Strategies,
		"workers", cfg.Batch.Workers,
		"headless", cfg.Browser.Headless,
	)

	// ── 3. Sinks and keyword source ─────────────────────────────────
	wb, err := sink.NewWorkbook(cfg.Sheet.Dir)
	if err != nil {
		slog.Error("failed to open workbook", "error", err)
		os.Exit(1)
	}

	sinks := sink.MultiSink{wb}
	var store *sink.Store
	if cfg.Store.Path != "" {
		store = sink.NewStore(cfg.Store.Path)
		if err := store.Open(); err != nil {
			slog.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	// ── 4. Cancellation on SIGINT/SIGTERM ───────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 5. Resolve the keyword list ─────────────────────────────────
	keywords, err := resolveKeywords(ctx, wb, *keywordsFlag)
	if err != nil {
		slog.Error("failed to load keywords", "error", err)
		os.Exit(1)
	}
	if len(keywords) == 0 {
		fmt.Fprintln(os.Stderr, "no keywords to scrape: fill in", cfg.Sheet.Dir+"/KEYWORDS.csv or pass -keywords")
		os.Exit(1)
	}

	// ── 6. Strategies and orchestrators, one set per worker ─────────
	// Each worker owns its own strategy set so browser sessions are never
	// shared between concurrent keywords. The site request budget and the
	// pacing RNG are shared so extra workers do not add request pressure.
	pacer := pacing.NewController(cfg.Pacing)
	limiter := rate.NewLimiter(rate.Limit(cfg.Batch.SiteRPS), cfg.Batch.SiteBurst)
	metrics := orchestrator.NewMetrics()

	// The human captcha handoff only makes sense with a visible browser,
	// and a single operator can only solve one challenge at a time.
	var prompter orchestrator.HumanPrompter
	workers := cfg.Batch.Workers
	if !cfg.Browser.Headless {
		prompter = &orchestrator.ConsolePrompter{
			In:      os.Stdin,
			Out:     os.Stderr,
			MaxWait: cfg.Orch.HumanWait,
		}
		if workers > 1 {
			slog.Info("headful run, limiting to one worker")
			workers = 1
		}
	}

	scrapers := make([]batch.Scraper, 0, workers)
	for i := 0; i < workers; i++ {
		strategies, err := strategy.Build(cfg.Orch.Strategies, cfg.Target, cfg.Browser, pacer)
		if err != nil {
			slog.Error("failed to build strategies", "error", err)
			os.Exit(1)
		}
		defer strategy.CloseAll(strategies)

		orch, err := orchestrator.New(strategies, detect.New(), extract.New(), pacer, orchestrator.Options{
			BaseURL:        cfg.Target.BaseURL,
			KeywordTimeout: cfg.Orch.KeywordTimeout,
			FetchTimeout:   cfg.Orch.FetchTimeout,
			Limiter:        limiter,
			Resolver:       orchestrator.NoopResolver{},
			Prompter:       prompter,
			Metrics:        metrics,
		})
		if err != nil {
			slog.Error("failed to build orchestrator", "error", err)
			os.Exit(1)
		}
		scrapers = append(scrapers, orch)
	}

	// ── 7. Run the batch ────────────────────────────────────────────
	runner, err := batch.New(scrapers, sinks, store,
		&webhook.Client{URL: cfg.Webhook.URL, Secret: cfg.Webhook.Secret},
		batch.Options{
			MaxResults: cfg.Orch.MaxResults,
			MaxRetries: cfg.Orch.MaxRetries,
			CacheTTL:   cfg.Batch.CacheTTL,
			CacheSize:  cfg.Batch.CacheSize,
		})
	if err != nil {
		slog.Error("failed to build batch runner", "error", err)
		os.Exit(1)
	}

	summary, runErr := runner.Run(ctx, keywords)
	printSummary(summary)

	if runErr != nil {
		os.Exit(130)
	}
	if summary.Succeeded == 0 {
		os.Exit(1)
	}
}

// resolveKeywords prefers the -keywords flag, falling back to the sheet.
func resolveKeywords(ctx context.Context, src sink.KeywordSource, flagValue string) ([]string, error) {
	if flagValue != "" {
		var keywords []string
		for _, part := range strings.Split(flagValue, ",") {
			if kw := models.SanitizeKeyword(part); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		return keywords, nil
	}
	return src.Keywords(ctx)
}

// printSummary writes a human-readable per-keyword table to stderr.
func printSummary(summary batch.Summary) {
	w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEYWORD\tSTATUS\tRECORDS\tATTEMPTS\tDURATION")
	for kw, outcome := range summary.Outcomes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			kw, outcome.Status, len(outcome.Records), len(outcome.Trail),
			outcome.Duration.Round(time.Millisecond))
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\n%d/%d keywords succeeded, %d records, in %s\n",
		summary.Succeeded, summary.Keywords, summary.Records,
		summary.Duration.Round(time.Second))
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
