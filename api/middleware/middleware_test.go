package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnlukespeight/Coemeta-Webscraper/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authRouter(keys []string) *gin.Engine {
	r := gin.New()
	r.Use(Auth(keys))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func do(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthOpenWhenNoKeysConfigured(t *testing.T) {
	t.Parallel()

	w := do(authRouter(nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejectsMissingAndUnknownKeys(t *testing.T) {
	t.Parallel()

	r := authRouter([]string{"sesame"})

	w := do(r, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

	w = do(r, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthAcceptsBothHeaderStyles(t *testing.T) {
	t.Parallel()

	r := authRouter([]string{"sesame", "second-key"})

	w := do(r, map[string]string{"X-API-Key": "sesame"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, map[string]string{"Authorization": "Bearer second-key"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMatchKeyIgnoresLengthMismatches(t *testing.T) {
	t.Parallel()

	keys := [][]byte{[]byte("sesame")}
	assert.True(t, matchKey(keys, "sesame"))
	assert.False(t, matchKey(keys, "sesam"))
	assert.False(t, matchKey(keys, "sesame1"))
}

func TestThrottleEnforcesBurst(t *testing.T) {
	t.Parallel()

	r := gin.New()
	th := NewThrottle(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})
	r.Use(th.Handler())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		w := do(r, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d within burst", i)
	}

	w := do(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestThrottleIsolatesCallers(t *testing.T) {
	t.Parallel()

	r := gin.New()
	th := NewThrottle(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	// Simulate the auth middleware stamping distinct identities.
	r.Use(func(c *gin.Context) {
		c.Set(IdentityKey, c.GetHeader("X-API-Key"))
	})
	r.Use(th.Handler())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := do(r, map[string]string{"X-API-Key": "alpha"})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, map[string]string{"X-API-Key": "alpha"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different caller still has its own full bucket.
	w = do(r, map[string]string{"X-API-Key": "beta"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestThrottleSweepsIdleCallers(t *testing.T) {
	t.Parallel()

	th := NewThrottle(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})

	now := time.Now()
	th.allow("stale", now)
	th.allow("fresh", now.Add(callerIdleTTL))

	// Crossing the sweep interval on the request path evicts the caller
	// that has been idle past the TTL.
	th.allow("trigger", now.Add(callerIdleTTL+sweepEvery))

	th.mu.Lock()
	defer th.mu.Unlock()
	assert.NotContains(t, th.callers, "stale")
	assert.Contains(t, th.callers, "fresh")
	assert.Contains(t, th.callers, "trigger")
}
