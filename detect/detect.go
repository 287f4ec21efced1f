// Package detect classifies fetched payloads for blocking and CAPTCHA
// signals. Classification is a pure function of the payload: identical bytes
// always produce the same verdict, so every rule is unit-testable in
// isolation. No network or shared state is touched.
package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

// captchaSelectors match CAPTCHA-bearing frames and containers. Compiled once
// at package load; a compile failure here is a programming error.
var captchaSelectors = []cascadia.Selector{
	cascadia.MustCompile(`iframe[src*="captcha"]`),
	cascadia.MustCompile(`iframe[src*="recaptcha"]`),
	cascadia.MustCompile(`iframe[src*="hcaptcha"]`),
	cascadia.MustCompile(`.g-recaptcha`),
	cascadia.MustCompile(`.h-captcha`),
	cascadia.MustCompile(`#captcha`),
	cascadia.MustCompile(`.captcha`),
}

// phraseRule maps a blocking phrase found in visible text to its verdict.
type phraseRule struct {
	phrase  string
	verdict models.Verdict
}

// phraseRules is evaluated in order; the first match wins. Rate-limit
// phrases come first so "too many requests" is not swallowed by the broader
// access-denied rules.
var phraseRules = []phraseRule{
	{"too many requests", models.VerdictRateLimited},
	{"rate limit", models.VerdictRateLimited},
	{"unusual traffic", models.VerdictRateLimited},
	{"verify you are human", models.VerdictCaptcha},
	{"access denied", models.VerdictBlocked},
	{"forbidden", models.VerdictBlocked},
	{"you have been blocked", models.VerdictBlocked},
	{"detected automation", models.VerdictBlocked},
	{"are you a robot", models.VerdictBlocked},
}

// Detector classifies payloads against the rule table.
type Detector struct{}

// New returns a Detector. It carries no state; the zero value works too.
func New() *Detector { return &Detector{} }

// Classify inspects a payload and returns its blocking verdict.
//
// Order of checks:
//  1. missing/empty payload or server error -> unknown-error
//  2. CAPTCHA-bearing frames/elements       -> captcha-detected
//  3. blocking status codes                 -> blocked / rate-limited
//  4. blocking phrases in visible text      -> blocked / rate-limited / captcha
//  5. otherwise                             -> clean
func (d *Detector) Classify(p *models.Payload) models.Verdict {
	if p == nil || strings.TrimSpace(p.HTML) == "" || p.StatusCode >= 500 {
		return models.VerdictUnknown
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return models.VerdictUnknown
	}

	for _, sel := range captchaSelectors {
		if doc.FindMatcher(sel).Length() > 0 {
			return models.VerdictCaptcha
		}
	}

	switch p.StatusCode {
	case 429:
		return models.VerdictRateLimited
	case 403:
		return models.VerdictBlocked
	}

	text := strings.ToLower(visibleText(p.HTML))
	for _, rule := range phraseRules {
		if strings.Contains(text, rule.phrase) {
			return rule.verdict
		}
	}

	return models.VerdictClean
}
