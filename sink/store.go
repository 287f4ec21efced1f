package sink

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/johnlukespeight/Coemeta-Webscraper/models"
)

// Store is the embedded SQLite database holding scraped results across runs.
// It doubles as a session journal: each batch run is recorded with its
// keyword counts for later analysis.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a Store for the given path. Use ":memory:" in tests.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Open opens the database and creates the schema if needed.
func (s *Store) Open() error {
	conn, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to open database", err)
	}

	// SQLite only supports one writer at a time, so limit to one connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return models.NewScrapeError(models.ErrCodeStore, "failed to connect to database", err)
	}

	// Wait on lock contention instead of failing with "database is locked".
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return models.NewScrapeError(models.ErrCodeStore, "failed to set busy timeout", err)
	}

	// WAL is not supported for in-memory databases.
	if s.path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
			conn.Close()
			return models.NewScrapeError(models.ErrCodeStore, "failed to enable WAL mode", err)
		}
	}

	s.db = conn

	if err := s.createSchema(); err != nil {
		conn.Close()
		return models.NewScrapeError(models.ErrCodeStore, "failed to create schema", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS keywords (
			keyword TEXT PRIMARY KEY,
			last_scraped_at TEXT NOT NULL DEFAULT '',
			result_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS auction_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keyword TEXT NOT NULL REFERENCES keywords(keyword),
			item_description TEXT NOT NULL,
			auction_end_date TEXT NOT NULL DEFAULT '',
			current_price REAL NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			scraped_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scraping_sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT '',
			keywords_total INTEGER NOT NULL DEFAULT 0,
			keywords_succeeded INTEGER NOT NULL DEFAULT 0,
			records_total INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running'
		);

		CREATE INDEX IF NOT EXISTS idx_results_keyword ON auction_results(keyword);
		CREATE INDEX IF NOT EXISTS idx_results_scraped_at ON auction_results(scraped_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WriteResults replaces the keyword's stored rows with the given records in
// one transaction, so a failure leaves the previous rows intact.
func (s *Store) WriteResults(ctx context.Context, keyword string, records []models.AuctionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO keywords (keyword, last_scraped_at, result_count)
		VALUES (?, ?, ?)
		ON CONFLICT(keyword) DO UPDATE SET last_scraped_at = excluded.last_scraped_at,
			result_count = excluded.result_count
	`, keyword, now, len(records)); err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to upsert keyword", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM auction_results WHERE keyword = ?`, keyword); err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to clear previous results", err)
	}

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO auction_results
				(keyword, item_description, auction_end_date, current_price, image_url, source_url, scraped_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rec.Keyword, rec.Description, rec.EndDate, rec.CurrentPrice,
			rec.ImageURL, rec.SourceURL, rec.ScrapedAt.UTC().Format(time.RFC3339)); err != nil {
			return models.NewScrapeError(models.ErrCodeStore, "failed to insert result", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to commit results", err)
	}
	return nil
}

// Results returns the stored records for a keyword, insertion order.
func (s *Store) Results(ctx context.Context, keyword string) ([]models.AuctionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword, item_description, auction_end_date, current_price, image_url, source_url, scraped_at
		FROM auction_results WHERE keyword = ? ORDER BY id
	`, keyword)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "failed to query results", err)
	}
	defer rows.Close()

	var records []models.AuctionRecord
	for rows.Next() {
		var rec models.AuctionRecord
		var scrapedAt string
		if err := rows.Scan(&rec.Keyword, &rec.Description, &rec.EndDate,
			&rec.CurrentPrice, &rec.ImageURL, &rec.SourceURL, &scrapedAt); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeStore, "failed to scan result", err)
		}
		if t, perr := time.Parse(time.RFC3339, scrapedAt); perr == nil {
			rec.ScrapedAt = t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "failed to iterate results", err)
	}
	return records, nil
}

// StartSession journals the beginning of a batch run and returns its id.
func (s *Store) StartSession(ctx context.Context, keywordsTotal int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scraping_sessions (id, started_at, keywords_total)
		VALUES (?, ?, ?)
	`, id, time.Now().UTC().Format(time.RFC3339), keywordsTotal)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeStore, "failed to start session", err)
	}
	return id, nil
}

// FinishSession closes out a batch run's journal entry.
func (s *Store) FinishSession(ctx context.Context, id string, succeeded, records int, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scraping_sessions
		SET finished_at = ?, keywords_succeeded = ?, records_total = ?, status = ?
		WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339), succeeded, records, status, id)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStore, "failed to finish session", err)
	}
	return nil
}

// SessionSummary is one row of the batch run journal.
type SessionSummary struct {
	ID                string
	StartedAt         string
	FinishedAt        string
	KeywordsTotal     int
	KeywordsSucceeded int
	RecordsTotal      int
	Status            string
}

// RecentSessions returns the most recent batch runs, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, keywords_total, keywords_succeeded, records_total, status
		FROM scraping_sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "failed to query sessions", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.StartedAt, &ss.FinishedAt,
			&ss.KeywordsTotal, &ss.KeywordsSucceeded, &ss.RecordsTotal, &ss.Status); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeStore, "failed to scan session", err)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}
