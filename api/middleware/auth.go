// Package middleware guards the scrape API: callers authenticate with an
// API key and are throttled per identity so one client cannot drain the
// shared site budget through the on-demand endpoint.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

// IdentityKey is the gin context key carrying the caller identity. Auth
// stores the presented API key under it; Throttle falls back to the client
// IP when it is absent.
const IdentityKey = "caller_identity"

// Auth returns API-key authentication middleware. Keys are presented as
// either `X-API-Key: <key>` or `Authorization: Bearer <key>`. With no keys
// configured the endpoint is open and requests pass through untouched.
func Auth(apiKeys []string) gin.HandlerFunc {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented := callerKey(c)
		if presented == "" {
			deny(c, "missing API key: send X-API-Key or Authorization: Bearer")
			return
		}
		if !matchKey(keys, presented) {
			deny(c, "unrecognized API key")
			return
		}

		c.Set(IdentityKey, presented)
		c.Next()
	}
}

// matchKey compares the presented key against every configured key in
// constant time. All keys are scanned regardless of an early match so
// response timing does not reveal which key prefix was close.
func matchKey(keys [][]byte, presented string) bool {
	p := []byte(presented)
	found := 0
	for _, k := range keys {
		if len(k) == len(p) {
			found |= subtle.ConstantTimeCompare(k, p)
		}
	}
	return found == 1
}

func callerKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func deny(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ScrapeResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeUnauthorized,
			Message: msg,
		},
	})
}
