package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

func resultPage(listings string) *models.Payload {
	return &models.Payload{
		HTML: fmt.Sprintf(`<html><body><table><tbody class="p-datatable-tbody">%s</tbody></table></body></html>`, listings),
		FinalURL: "https://shopgoodwill.com/search?keywords=test",
	}
}

func TestExtractValidListings(t *testing.T) {
	t.Parallel()

	p := resultPage(`
		<tr>
			<td><a href="/item/101">Vintage Polaroid Camera</a></td>
			<td class="price">$24.99</td>
			<td class="end-date">2026-09-01 18:00</td>
			<td><img src="https://images.example.com/101.jpg"></td>
		</tr>
		<tr>
			<td><a href="/item/102">Pyrex Mixing Bowl Set</a></td>
			<td class="price">$1,150.00</td>
			<td class="end-date">2026-09-02 12:30</td>
			<td><img data-src="/thumbs/102.jpg"></td>
		</tr>
	`)

	records, skipped, err := New().Extract(p)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, records, 2)

	assert.Equal(t, "Vintage Polaroid Camera", records[0].Description)
	assert.Equal(t, 24.99, records[0].CurrentPrice)
	assert.Equal(t, "2026-09-01 18:00", records[0].EndDate)
	assert.Equal(t, "https://images.example.com/101.jpg", records[0].ImageURL)

	// Document order is preserved and relative images are absolutized.
	assert.Equal(t, "Pyrex Mixing Bowl Set", records[1].Description)
	assert.Equal(t, 1150.00, records[1].CurrentPrice)
	assert.Equal(t, "https://shopgoodwill.com/thumbs/102.jpg", records[1].ImageURL)
}

func TestExtractSkipsIncompleteListings(t *testing.T) {
	t.Parallel()

	// Five listings: two are missing a required field and must be skipped
	// without aborting the rest.
	p := resultPage(`
		<tr><td><a href="/item/1">Good One</a></td><td class="price">$5.00</td></tr>
		<tr><td><a href="/item/2">No Price Here</a></td><td class="price">TBD</td></tr>
		<tr><td><a href="/item/3">Good Two</a></td><td class="price">$7.50</td></tr>
		<tr><td><a href="/item/4"></a></td><td class="price">$9.99</td></tr>
		<tr><td><a href="/item/5">Good Three</a></td><td class="price">$0</td></tr>
	`)

	records, skipped, err := New().Extract(p)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, records, 3)
	assert.Equal(t, "Good One", records[0].Description)
	assert.Equal(t, "Good Two", records[1].Description)
	assert.Equal(t, "Good Three", records[2].Description)
	assert.Equal(t, 0.0, records[2].CurrentPrice) // free listings are valid
}

func TestExtractEmptyPayload(t *testing.T) {
	t.Parallel()

	_, _, err := New().Extract(&models.Payload{HTML: "  "})
	require.Error(t, err)
	se, ok := err.(*models.ScrapeError)
	require.True(t, ok)
	assert.Equal(t, models.ErrCodeExtraction, se.Code)

	_, _, err = New().Extract(nil)
	require.Error(t, err)
}

func TestExtractNoListings(t *testing.T) {
	t.Parallel()

	p := &models.Payload{HTML: "<html><body><p>No results found.</p></body></html>"}
	records, skipped, err := New().Extract(p)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, skipped)
}

func TestExtractFallbackSelectors(t *testing.T) {
	t.Parallel()

	// No data table; the broad product-div fallback should pick these up.
	p := &models.Payload{
		HTML: `<html><body>
			<div class="product-tile">
				<h3>Mid Century Lamp</h3>
				<span class="price">$42.00</span>
			</div>
		</body></html>`,
		FinalURL: "https://shopgoodwill.com/search?keywords=lamp",
	}

	records, _, err := New().Extract(p)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Mid Century Lamp", records[0].Description)
	assert.Equal(t, 42.0, records[0].CurrentPrice)
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$24.99", 24.99, true},
		{"$1,150.00", 1150.00, true},
		{"Current bid: $9.99", 9.99, true},
		{"$0", 0, true},
		{"12", 12, true},
		{"", 0, false},
		{"TBD", 0, false},
		{"-5.00", 0, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParsePrice(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "vintage camera lot", CleanText("  vintage \n\t camera   lot "))
	assert.Equal(t, "", CleanText("   "))
}
