package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	wsRe    = regexp.MustCompile(`\s+`)
	priceRe = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)
)

// CleanText collapses runs of whitespace and trims the result.
func CleanText(text string) string {
	return wsRe.ReplaceAllString(strings.TrimSpace(text), " ")
}

// ParsePrice extracts a decimal amount from price text such as "$1,234.56"
// or "Current bid: $9.99". It returns false for empty, unparseable, or
// negative input; records without a valid non-negative price are dropped.
func ParsePrice(text string) (float64, bool) {
	m := priceRe.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
