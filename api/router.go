package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnlukespeight/Coemeta-Webscraper/api/handler"
	"github.com/johnlukespeight/Coemeta-Webscraper/api/middleware"
	"github.com/johnlukespeight/Coemeta-Webscraper/config"
	"github.com/johnlukespeight/Coemeta-Webscraper/orchestrator"
	"github.com/johnlukespeight/Coemeta-Webscraper/sink"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → Throttle
//
// Health and metrics are intentionally outside auth so monitoring probes
// always work.
func NewRouter(orch *orchestrator.Orchestrator, sinks sink.Sink, store *sink.Store, metrics *orchestrator.Metrics, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(startTime, cfg.Orch.Strategies))

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}

	// Protected group — auth + per-caller throttle.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.NewThrottle(cfg.RateLimit).Handler())

	// Scrape one keyword on demand.
	protected.POST("/scrape", handler.Scrape(orch, sinks, cfg.Orch))

	// Stored results and run journal.
	protected.GET("/results/:keyword", handler.Results(store))
	protected.GET("/sessions", handler.Sessions(store))

	return r
}
