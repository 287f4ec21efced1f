package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnlukespeight/Coemeta-Webscraper/config"
	"github.com/johnlukespeight/Coemeta-Webscraper/detect"
	"github.com/johnlukespeight/Coemeta-Webscraper/extract"
	"github.com/johnlukespeight/Coemeta-Webscraper/models"
	"github.com/johnlukespeight/Coemeta-Webscraper/orchestrator"
	"github.com/johnlukespeight/Coemeta-Webscraper/pacing"
	"github.com/johnlukespeight/Coemeta-Webscraper/strategy"
)

// fixedStrategy serves one canned result page for every query.
type fixedStrategy struct{ html string }

func (f *fixedStrategy) Name() string { return "http" }

func (f *fixedStrategy) Fetch(_ context.Context, _ *strategy.Query) (*models.Payload, error) {
	return &models.Payload{
		HTML:       f.html,
		StatusCode: 200,
		FinalURL:   "https://shopgoodwill.com/search",
		Strategy:   "http",
		FetchedAt:  time.Now(),
	}, nil
}

func (f *fixedStrategy) Close() {}

func testRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	page := `<html><body><table><tbody class="p-datatable-tbody">
		<tr><td><a href="/item/1">Vintage Camera</a></td><td class="price">$24.99</td></tr>
	</tbody></table></body></html>`

	pacer := pacing.NewController(config.PacingConfig{Seed: 1})
	orch, err := orchestrator.New(
		[]strategy.Strategy{&fixedStrategy{html: page}},
		detect.New(), extract.New(), pacer,
		orchestrator.Options{BaseURL: cfg.Target.BaseURL},
	)
	require.NoError(t, err)

	return NewRouter(orch, nil, nil, orchestrator.NewMetrics(), cfg, time.Now())
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(t, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestMetricsEndpoint(t *testing.T) {
	router := testRouter(t, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScrapeEndpoint(t *testing.T) {
	router := testRouter(t, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
		strings.NewReader(`{"keyword": "Vintage Camera", "max_results": 5}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, "Vintage Camera")
	assert.Contains(t, body, `"keyword":"vintage camera"`)
}

func TestScrapeEndpointRejectsMissingKeyword(t *testing.T) {
	router := testRouter(t, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
		strings.NewReader(`{"max_results": 5}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeInvalidInput)
}

func TestResultsEndpointWithoutStore(t *testing.T) {
	router := testRouter(t, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/results/camera", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"secret-key"}
	router := testRouter(t, cfg)

	// Missing key is rejected.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
		strings.NewReader(`{"keyword": "camera"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid key passes through to the handler.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
		strings.NewReader(`{"keyword": "camera"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "secret-key")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open for probes.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
