package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
	"github.com/johnlukespeight/Coemeta-Webscraper/sink"
)

// Results returns a handler for GET /api/v1/results/:keyword.
// It serves previously stored records without touching the target site.
func Results(store *sink.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusNotImplemented, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeStore,
					Message: "result store is disabled",
				},
			})
			return
		}

		kw := models.SanitizeKeyword(c.Param("keyword"))
		if kw == "" {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "keyword is empty",
				},
			})
			return
		}

		records, err := store.Results(c.Request.Context(), kw)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"keyword": kw,
			"count":   len(records),
			"records": records,
		})
	}
}

// Sessions returns a handler for GET /api/v1/sessions.
func Sessions(store *sink.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusNotImplemented, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeStore,
					Message: "result store is disabled",
				},
			})
			return
		}

		limit := 20
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		sessions, err := store.RecentSessions(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}
