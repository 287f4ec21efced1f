package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

const (
	keywordsFile = "KEYWORDS.csv"
	resultsFile  = "RESULTS.csv"
)

// resultsHeader preserves the operator spreadsheet's original column names.
var resultsHeader = []string{
	"Keyword",
	"Item Description",
	"Auction end date",
	"Current price",
	"Auction image / thumbnail URL (extra credit)",
}

// Workbook is a directory-backed spreadsheet: KEYWORDS.csv holds the keyword
// list (first column), RESULTS.csv accumulates records. Re-scraping a keyword
// replaces its previous rows rather than duplicating them.
type Workbook struct {
	dir string
	mu  sync.Mutex
}

// NewWorkbook creates the workbook directory if needed.
func NewWorkbook(dir string) (*Workbook, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "failed to create workbook dir", err)
	}
	return &Workbook{dir: dir}, nil
}

// Keywords reads the keyword list from KEYWORDS.csv: first column, header
// row and blank entries dropped, each keyword sanitized.
func (w *Workbook) Keywords(_ context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(filepath.Join(w.dir, keywordsFile))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "failed to open keyword sheet", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "failed to read keyword sheet", err)
	}

	var keywords []string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		kw := models.SanitizeKeyword(row[0])
		if kw == "" {
			continue
		}
		if i == 0 && kw == "keyword" {
			continue
		}
		keywords = append(keywords, kw)
	}
	return keywords, nil
}

// WriteResults replaces the keyword's rows in RESULTS.csv with the given
// records. The sheet is rewritten to a temp file and renamed into place, so
// readers never observe a half-written sheet.
func (w *Workbook) WriteResults(_ context.Context, keyword string, records []models.AuctionRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, resultsFile)

	kept, err := readOtherRows(path, keyword)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(w.dir, resultsFile+".tmp-*")
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to create temp sheet", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	cw := csv.NewWriter(tmp)
	if err := cw.Write(resultsHeader); err != nil {
		tmp.Close()
		return models.NewScrapeError(models.ErrCodeStore, "failed to write sheet header", err)
	}
	for _, row := range kept {
		if err := cw.Write(row); err != nil {
			tmp.Close()
			return models.NewScrapeError(models.ErrCodeStore, "failed to write sheet row", err)
		}
	}
	for _, rec := range records {
		row := []string{
			rec.Keyword,
			rec.Description,
			rec.EndDate,
			fmt.Sprintf("%.2f", rec.CurrentPrice),
			rec.ImageURL,
		}
		if err := cw.Write(row); err != nil {
			tmp.Close()
			return models.NewScrapeError(models.ErrCodeStore, "failed to write sheet row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return models.NewScrapeError(models.ErrCodeStore, "failed to flush sheet", err)
	}
	if err := tmp.Close(); err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to close temp sheet", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to replace results sheet", err)
	}
	return nil
}

// ReadResults returns the sheet rows for one keyword, header excluded.
func (w *Workbook) ReadResults(keyword string) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := readAllRows(filepath.Join(w.dir, resultsFile))
	if err != nil {
		return nil, err
	}

	var out [][]string
	for _, row := range rows {
		if len(row) > 0 && strings.EqualFold(row[0], keyword) {
			out = append(out, row)
		}
	}
	return out, nil
}

// readOtherRows returns existing data rows that do not belong to keyword.
// A missing sheet is fine, it just means there is nothing to keep.
func readOtherRows(path, keyword string) ([][]string, error) {
	rows, err := readAllRows(path)
	if err != nil {
		if os.IsNotExist(errUnwrap(err)) {
			return nil, nil
		}
		return nil, err
	}

	var kept [][]string
	for _, row := range rows {
		if len(row) > 0 && strings.EqualFold(row[0], keyword) {
			continue
		}
		kept = append(kept, row)
	}
	return kept, nil
}

func readAllRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "failed to open results sheet", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "failed to read results sheet", err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // drop header
	}
	return rows, nil
}

func errUnwrap(err error) error {
	if se, ok := err.(*models.ScrapeError); ok && se.Err != nil {
		return se.Err
	}
	return err
}
