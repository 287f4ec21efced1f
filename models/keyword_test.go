package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKeyword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Vintage Camera", "vintage camera"},
		{"trims", "  danish modern  ", "danish modern"},
		{"collapses whitespace", "mid\t century \n lamp", "mid century lamp"},
		{"empty", "   ", ""},
		{"already clean", "pyrex", "pyrex"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeKeyword(tt.in))
		})
	}
}

func TestBuildSearchURL(t *testing.T) {
	t.Parallel()

	got := BuildSearchURL("https://shopgoodwill.com", "vintage camera")
	assert.Equal(t, "https://shopgoodwill.com/search?keywords=vintage+camera&sort=Closing", got)

	// Trailing slash must not produce a double slash.
	got = BuildSearchURL("https://shopgoodwill.com/", "pyrex")
	assert.Equal(t, "https://shopgoodwill.com/search?keywords=pyrex&sort=Closing", got)
}

func TestScrapeErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := assert.AnError
	err := NewScrapeError(ErrCodeTransport, "fetch failed", inner)

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), ErrCodeTransport)
	assert.Contains(t, err.Error(), "fetch failed")
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFatal(NewScrapeError(ErrCodeConfiguration, "bad strategy", nil)))
	assert.False(t, IsFatal(NewScrapeError(ErrCodeTransport, "boom", nil)))
	assert.False(t, IsFatal(assert.AnError))
}
