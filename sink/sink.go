// Package sink persists scrape results. Two implementations ship: a CSV
// workbook mirroring the operator spreadsheet, and an embedded SQLite store
// for analytical queries across runs.
package sink

import (
	"context"
	"errors"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

// Sink receives the validated records for one keyword. Writes are
// append-or-nothing per keyword: a failed write leaves no partial rows.
type Sink interface {
	WriteResults(ctx context.Context, keyword string, records []models.AuctionRecord) error
}

// KeywordSource supplies the batch keyword list.
type KeywordSource interface {
	Keywords(ctx context.Context) ([]string, error)
}

// MultiSink fans writes out to every sink and joins their errors, so one
// failing destination does not silence the others.
type MultiSink []Sink

func (m MultiSink) WriteResults(ctx context.Context, keyword string, records []models.AuctionRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteResults(ctx, keyword, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
