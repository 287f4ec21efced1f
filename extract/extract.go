// Package extract parses a fetched result page into normalized auction
// records. Listings missing a required field (description or price) are
// skipped and counted, never fatal to the batch. Emitted records follow
// document order; downstream sinks rely on "most relevant first".
package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

// listingSelectors is tried in order until one yields candidate elements.
// The target site is an Angular app whose markup shifts between releases, so
// the selectors run from the most specific known structure to broad
// fallbacks.
var listingSelectors = []string{
	".p-datatable-tbody tr",
	"div[class*='product']",
	"div[class*='item']",
	"div[class*='card']",
	"div[class*='auction']",
	"div:has(a[href*='/item/'])",
}

// chrome words that mark navigation/header/footer noise rather than listings.
var skipWords = []string{
	"sign in", "login", "register", "cart", "menu", "nav", "header", "footer",
}

// Extractor turns payloads into auction records.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract parses the payload and returns the records in document order plus
// the count of listings skipped for missing required fields. A payload that
// cannot be parsed at all is an EXTRACTION_ERROR; the orchestrator treats
// that as zero records, not as a fatal failure.
func (e *Extractor) Extract(p *models.Payload) ([]models.AuctionRecord, int, error) {
	if p == nil || strings.TrimSpace(p.HTML) == "" {
		return nil, 0, models.NewScrapeError(models.ErrCodeExtraction, "empty payload", nil)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return nil, 0, models.NewScrapeError(models.ErrCodeExtraction, "unparseable payload", err)
	}

	listings := findListings(doc)

	var records []models.AuctionRecord
	skipped := 0
	now := time.Now()

	listings.Each(func(_ int, s *goquery.Selection) {
		desc := CleanText(description(s))
		price, ok := ParsePrice(priceText(s))
		if desc == "" || !ok {
			skipped++
			return
		}

		records = append(records, models.AuctionRecord{
			Description:  desc,
			CurrentPrice: price,
			EndDate:      CleanText(dateText(s)),
			ImageURL:     imageURL(s, p.FinalURL),
			SourceURL:    p.FinalURL,
			ScrapedAt:    now,
		})
	})

	return records, skipped, nil
}

// findListings returns the first non-empty candidate set, with obvious page
// chrome filtered out.
func findListings(doc *goquery.Document) *goquery.Selection {
	for _, selector := range listingSelectors {
		candidates := doc.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return !isChrome(s)
		})
		if candidates.Length() > 0 {
			return candidates
		}
	}
	return doc.Find("") // empty selection
}

func isChrome(s *goquery.Selection) bool {
	classes, _ := s.Attr("class")
	haystack := strings.ToLower(classes)
	for _, word := range skipWords {
		if strings.Contains(haystack, strings.ReplaceAll(word, " ", "")) || strings.Contains(haystack, word) {
			return true
		}
	}
	return false
}

// description prefers the item link text, then headings, then title-ish divs.
func description(s *goquery.Selection) string {
	if link := s.Find("a[href*='/item/']").First(); link.Length() > 0 {
		if t := strings.TrimSpace(link.Text()); t != "" {
			return t
		}
	}
	for _, sel := range []string{"h3", "h4", "[class*='title']", "[class*='name']", "[class*='desc']", "a"} {
		if el := s.Find(sel).First(); el.Length() > 0 {
			if t := strings.TrimSpace(el.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

func priceText(s *goquery.Selection) string {
	if el := s.Find("[class*='price']").First(); el.Length() > 0 {
		return el.Text()
	}
	// Fallback: any element whose own text carries a dollar amount.
	out := ""
	s.Find("span, div, td").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		t := strings.TrimSpace(el.Text())
		if strings.Contains(t, "$") && el.Children().Length() == 0 {
			out = t
			return false
		}
		return true
	})
	return out
}

func dateText(s *goquery.Selection) string {
	for _, sel := range []string{
		"[class*='end-date']", "[class*='date']", "[class*='time']", "[class*='timer']", "[class*='countdown']",
	} {
		if el := s.Find(sel).First(); el.Length() > 0 {
			if t := strings.TrimSpace(el.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

// imageURL pulls the thumbnail, following common lazy-load attributes, and
// absolutizes protocol-relative and root-relative sources.
func imageURL(s *goquery.Selection, pageURL string) string {
	img := s.Find("img").First()
	if img.Length() == 0 {
		return ""
	}

	src := ""
	for _, attr := range []string{"src", "data-src", "data-lazy", "data-original"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			src = strings.TrimSpace(v)
			break
		}
	}

	switch {
	case src == "":
		return ""
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "/"):
		return siteOrigin(pageURL) + src
	default:
		return src
	}
}

func siteOrigin(pageURL string) string {
	if i := strings.Index(pageURL, "://"); i > 0 {
		rest := pageURL[i+3:]
		if j := strings.Index(rest, "/"); j > 0 {
			return pageURL[:i+3+j]
		}
	}
	return strings.TrimRight(pageURL, "/")
}
