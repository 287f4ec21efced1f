// Package strategy provides the concrete fetch strategies: a stealth browser,
// a plain browser, and a direct HTTP client with a Chrome TLS fingerprint.
// A strategy obtains one rendered result page per invocation and never
// retries internally; retry policy belongs to the orchestrator.
package strategy

import (
	"context"
	"fmt"

	"github.com/johnlukespeight/Coemeta-Webscraper/config"
	"github.com/johnlukespeight/Coemeta-Webscraper/models"
	"github.com/johnlukespeight/Coemeta-Webscraper/pacing"
)

// Query is one search to fetch.
type Query struct {
	Keyword string
	URL     string
}

// Strategy is one concrete method of retrieving a rendered result page.
type Strategy interface {
	// Name returns the strategy identifier (e.g. "http", "browser-stealth").
	Name() string

	// Fetch retrieves the page for the query. A non-nil error means a
	// transport/session failure; blocking signals inside a returned payload
	// are the detector's business, not Fetch's.
	Fetch(ctx context.Context, q *Query) (*models.Payload, error)

	// Close releases the strategy's session resources. Safe to call more
	// than once.
	Close()
}

// Recycler is implemented by strategies whose session should be rotated
// between keywords to vary the presented fingerprint.
type Recycler interface {
	Recycle()
}

// Build constructs the ordered strategy list from configured names.
// Unknown names are a configuration error: the strategy set is a closed set
// selected by explicit ordered configuration.
func Build(names []string, target config.TargetConfig, browser config.BrowserConfig, pacer *pacing.Controller) ([]Strategy, error) {
	if len(names) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeConfiguration, "strategy list is empty", nil)
	}

	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case "browser-stealth":
			strategies = append(strategies, NewBrowser(browser, target.Proxy, pacer, true))
		case "browser":
			strategies = append(strategies, NewBrowser(browser, target.Proxy, pacer, false))
		case "http":
			strategies = append(strategies, NewDirectHTTP(target.Proxy))
		default:
			return nil, models.NewScrapeError(models.ErrCodeConfiguration,
				fmt.Sprintf("unknown strategy %q", name), nil)
		}
	}
	return strategies, nil
}

// CloseAll tears down every strategy's session resources.
func CloseAll(strategies []Strategy) {
	for _, s := range strategies {
		s.Close()
	}
}
