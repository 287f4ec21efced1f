package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health returns a handler for GET /api/v1/health.
func Health(startTime time.Time, strategies []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"uptime":     time.Since(startTime).Round(time.Second).String(),
			"strategies": strategies,
			"version":    "0.1.0",
		})
	}
}
