package strategy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/johnlukespeight/Coemeta-Webscraper/config"
	"github.com/johnlukespeight/Coemeta-Webscraper/models"
	"github.com/johnlukespeight/Coemeta-Webscraper/pacing"
)

// Browser fetches result pages through a real Chromium instance driven by
// rod. With stealthMode enabled it additionally injects the stealth JS that
// masks navigator.webdriver and friends before every navigation.
//
// The browser process is launched lazily on first Fetch so building the
// strategy list stays cheap, and the strategy owns exactly one tab session
// at a time (sessions rotate between keywords via Recycle). Because there is
// only one tab, Fetch holds fetchMu for the whole invocation: concurrent
// callers serialize on it. Callers that want parallel browser fetches must
// run one strategy set per worker.
type Browser struct {
	name        string
	stealthMode bool
	cfg         config.BrowserConfig
	proxy       string
	pacer       *pacing.Controller
	identities  *identityPool

	// fetchMu spans a full Fetch so a second caller can never navigate or
	// read the tab mid-flight, and Recycle/Close cannot tear the tab down
	// under an active fetch.
	fetchMu sync.Mutex

	mu      sync.Mutex
	browser *rod.Browser
	session *session
	closed  bool
}

// NewBrowser creates a browser strategy. stealthMode selects between the
// "browser-stealth" and "browser" variants; both share launch flags.
func NewBrowser(cfg config.BrowserConfig, proxy string, pacer *pacing.Controller, stealthMode bool) *Browser {
	name := "browser"
	if stealthMode {
		name = "browser-stealth"
	}
	return &Browser{
		name:        name,
		stealthMode: stealthMode,
		cfg:         cfg,
		proxy:       proxy,
		pacer:       pacer,
		identities:  newIdentityPool(),
	}
}

func (b *Browser) Name() string { return b.name }

// Fetch navigates a (possibly recycled) tab to the query URL, simulates
// human interaction, and returns the rendered HTML. One invocation at a
// time; see the type comment.
func (b *Browser) Fetch(ctx context.Context, q *Query) (*models.Payload, error) {
	b.fetchMu.Lock()
	defer b.fetchMu.Unlock()

	sess, err := b.acquireSession()
	if err != nil {
		return nil, err
	}

	payload, err := b.fetchOnSession(ctx, sess, q)
	b.mu.Lock()
	if err != nil {
		sess.recordFailure()
	} else {
		sess.recordSuccess()
	}
	b.mu.Unlock()
	return payload, err
}

func (b *Browser) fetchOnSession(ctx context.Context, sess *session, q *Query) (*models.Payload, error) {
	page := sess.page

	// Reset to a blank document so the previous keyword's DOM cannot leak
	// into this fetch. Uses the page without the request context so cleanup
	// works even when ctx has already expired.
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("browser cleanup failed", "strategy", b.name, "error", navErr)
		}
	}()

	// Stealth JS must be installed before navigation to take effect.
	if b.stealthMode {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"strategy", b.name, "error", evalErr)
		}
	}

	// Per-invocation identity: fresh user agent and header set each fetch.
	id := b.identities.Next()
	if err := (proto.NetworkSetUserAgentOverride{UserAgent: id.UserAgent}).Call(page); err != nil {
		slog.Debug("user agent override failed", "strategy", b.name, "error", err)
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(id.Headers)}.Call(page)

	// Block heavy resource types before navigation.
	router := setupHijack(page, b.cfg.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	if err := p.Navigate(q.URL); err != nil {
		return nil, categorizeNavError(err)
	}

	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"strategy", b.name, "error", stableErr)
	}

	// Human-like scrolling before extraction.
	b.pacer.SimulateInteraction(ctx, p)

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeNavError(htmlErr)
	}

	// Status code via the navigation performance entry; no CDP event
	// listeners needed.
	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	finalURL := q.URL
	if res, err := p.Eval(`() => window.location.href`); err == nil && res.Value.Str() != "" {
		finalURL = res.Value.Str()
	}

	return &models.Payload{
		HTML:       rawHTML,
		StatusCode: statusCode,
		FinalURL:   finalURL,
		Strategy:   b.name,
		FetchedAt:  time.Now(),
	}, nil
}

// acquireSession returns the strategy's live session, launching the browser
// and opening a tab as needed.
func (b *Browser) acquireSession() (*session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "strategy is closed", nil)
	}

	if b.browser == nil {
		browser, err := launch(b.cfg, b.proxy)
		if err != nil {
			return nil, err
		}
		b.browser = browser
	}

	if b.session == nil {
		page, err := b.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeTransport, "failed to open page", err)
		}
		b.session = newSession(page)
		slog.Debug("browser session opened", "strategy", b.name, "session", b.session.id)
	}

	return b.session, nil
}

// Recycle rotates the session between keywords: an unhealthy or stale
// session is torn down so the next fetch starts from a fresh tab and
// fingerprint.
func (b *Browser) Recycle() {
	b.fetchMu.Lock()
	defer b.fetchMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return
	}
	if b.session.shouldRetire(b.cfg.SessionMaxUses, b.cfg.SessionMaxAge) {
		slog.Debug("retiring browser session",
			"strategy", b.name,
			"session", b.session.id,
			"uses", b.session.useCount,
			"errScore", b.session.errScore,
		)
		b.session.close()
		b.session = nil
	}
}

// Close tears down the session and kills the browser process. Safe to call
// repeatedly.
func (b *Browser) Close() {
	b.fetchMu.Lock()
	defer b.fetchMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	if b.session != nil {
		b.session.close()
		b.session = nil
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			slog.Warn("browser close failed", "strategy", b.name, "error", err)
		}
		b.browser = nil
	}
}

// launch starts a Chromium with anti-automation launch flags and connects.
func launch(cfg config.BrowserConfig, proxy string) (*rod.Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if proxy != "" {
		l = l.Proxy(proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "failed to launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "failed to connect to browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)
	return browser, nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeNavError wraps raw rod errors into typed ScrapeErrors.
func categorizeNavError(err error) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, "navigation timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "navigation canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeTransport, "navigation failed", err)
	}
}
