package strategy

import (
	"math/rand"
	"sync"
	"time"
)

// Identity is one browser fingerprint presented to the target site: a
// user-agent plus a matching header set. Strategies draw a fresh identity per
// invocation, not per process, so consecutive attempts within a retry loop
// vary their fingerprint.
type Identity struct {
	UserAgent string
	Headers   map[string]string
}

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.8",
	"en-GB,en;q=0.9,en-US;q=0.8",
}

// identityPool hands out randomized identities from a shared seeded RNG.
type identityPool struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newIdentityPool() *identityPool {
	return &identityPool{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next draws a fresh identity.
func (p *identityPool) Next() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Identity{
		UserAgent: userAgents[p.rng.Intn(len(userAgents))],
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           acceptLanguages[p.rng.Intn(len(acceptLanguages))],
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Cache-Control":             "max-age=0",
			"DNT":                       "1",
		},
	}
}
