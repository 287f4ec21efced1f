package models

import (
	"net/url"
	"regexp"
	"strings"
)

var wsRe = regexp.MustCompile(`\s+`)

// SanitizeKeyword trims, lowercases, and collapses internal whitespace so a
// keyword is stable for URLs, cache keys, and sink rows. A keyword is
// immutable once dispatched to the orchestrator.
func SanitizeKeyword(keyword string) string {
	return wsRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(keyword)), " ")
}

// BuildSearchURL assembles the listing search URL for a keyword, sorted by
// closing time so the freshest auctions come first.
func BuildSearchURL(baseURL, keyword string) string {
	return strings.TrimRight(baseURL, "/") + "/search?keywords=" + url.QueryEscape(keyword) + "&sort=Closing"
}
