package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnlukespeight/Coemeta-Webscraper/config"
	"github.com/johnlukespeight/Coemeta-Webscraper/models"
	"github.com/johnlukespeight/Coemeta-Webscraper/orchestrator"
	"github.com/johnlukespeight/Coemeta-Webscraper/sink"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// Orchestration flow:
//  1. Parse & validate request, apply configured defaults.
//  2. Orchestrator.Scrape resolves the keyword to a terminal outcome.
//  3. Success/partial outcomes are persisted through the sinks.
//  4. The outcome, including its diagnostic trail, is returned as-is.
func Scrape(orch *orchestrator.Orchestrator, sinks sink.Sink, cfg config.OrchestratorConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults(cfg.MaxResults, cfg.MaxRetries)

		outcome := orch.Scrape(c.Request.Context(), req.Keyword, req.MaxResults, req.MaxRetries)

		if outcome.Status == models.StatusFatal {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Outcome: &outcome,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "scrape aborted before any attempt",
				},
			})
			return
		}

		if outcome.Succeeded() && sinks != nil {
			if err := sinks.WriteResults(c.Request.Context(), outcome.Keyword, outcome.Records); err != nil {
				respondError(c, err)
				return
			}
		}

		c.JSON(http.StatusOK, models.ScrapeResponse{
			Success: outcome.Succeeded(),
			Outcome: &outcome,
		})
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	scrapeErr, ok := err.(*models.ScrapeError)
	if !ok {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.ScrapeResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeTransport:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
