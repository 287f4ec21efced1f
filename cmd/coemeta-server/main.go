package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/johnlukespeight/Coemeta-Webscraper/api"
	"github.com/johnlukespeight/Coemeta-Webscraper/config"
	"github.com/johnlukespeight/Coemeta-Webscraper/detect"
	"github.com/johnlukespeight/Coemeta-Webscraper/extract"
	"github.com/johnlukespeight/Coemeta-Webscraper/orchestrator"
	"github.com/johnlukespeight/Coemeta-Webscraper/pacing"
	"github.com/johnlukespeight/Coemeta-Webscraper/sink"
	"github.com/johnlukespeight/Coemeta-Webscraper/strategy"
)

func main() {
	// ── 1. Load and validate configuration ──────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("coemeta server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"strategies", cfg.Orch.Strategies,
	)

	// ── 3. Build the fetch strategies ───────────────────────────────
	pacer := pacing.NewController(cfg.Pacing)
	strategies, err := strategy.Build(cfg.Orch.Strategies, cfg.Target, cfg.Browser, pacer)
	if err != nil {
		slog.Error("failed to build strategies", "error", err)
		os.Exit(1)
	}
	defer strategy.CloseAll(strategies)

	// ── 4. Orchestrator ─────────────────────────────────────────────
	metrics := orchestrator.NewMetrics()
	orch, err := orchestrator.New(strategies, detect.New(), extract.New(), pacer, orchestrator.Options{
		BaseURL:        cfg.Target.BaseURL,
		KeywordTimeout: cfg.Orch.KeywordTimeout,
		FetchTimeout:   cfg.Orch.FetchTimeout,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.Batch.SiteRPS), cfg.Batch.SiteBurst),
		Resolver:       orchestrator.NoopResolver{},
		Metrics:        metrics,
	})
	if err != nil {
		slog.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	// ── 5. Sinks ────────────────────────────────────────────────────
	var sinks sink.MultiSink
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
	if cfg.Sheet.Dir != "" {
		wb, err := sink.NewWorkbook(cfg.Sheet.Dir)
		if err != nil {
			slog.Error("failed to open workbook", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, wb)
	}

	// ── 6. Router and HTTP server ───────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(orch, sinks, store, metrics, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("coemeta server stopped")
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
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
