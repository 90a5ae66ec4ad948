// Package storage archives every processed news item, together with its AI
// summary when one exists, into a local SQLite database.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"newshound/internal/ai"
	"newshound/internal/feed"
)

// Config is the `storage:` section of config.yaml. The archive shares its
// database file with the deduper by default.
type Config struct {
	Enabled *bool  `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

func (c *Config) normalize() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join("state", "news.db")
	}
}

func (c *Config) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type Store struct {
	db      *sql.DB
	enabled bool
}

func Open(cfg Config) (*Store, error) {
	cfg.normalize()
	if !cfg.enabled() {
		return &Store{enabled: false}, nil
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS news_records (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			source       TEXT,
			title        TEXT,
			url          TEXT,
			summary      TEXT,
			published_at TEXT,
			authors      TEXT,
			raw_json     TEXT,
			ai_summary   TEXT,
			created_at   TEXT DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create storage table: %w", err)
	}
	return &Store{db: db, enabled: true}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveNews appends one archive row per item. The items and their summaries
// are written as they were at notification time; JSON columns hold the parts
// that have no fixed schema.
func (s *Store) SaveNews(items []*feed.Item, summaries map[string]*ai.Summary) error {
	if !s.enabled || len(items) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO news_records (source, title, url, summary, published_at, authors, raw_json, ai_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		authors, _ := json.Marshal(item.Authors)
		raw := item.Raw
		if raw == nil {
			raw = map[string]any{}
		}
		rawJSON, _ := json.Marshal(raw)

		var aiJSON any
		if summary := summaries[item.Key()]; summary != nil {
			if data, err := json.Marshal(summary); err == nil {
				aiJSON = string(data)
			}
		}
		if _, err := stmt.Exec(
			item.Source, item.Title, item.URL, item.Summary,
			item.PublishedAt, string(authors), string(rawJSON), aiJSON,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("archive %q: %w", item.Title, err)
		}
	}
	return tx.Commit()
}

// Count reports the number of archived rows, mostly for tests and the
// monitoring endpoint.
func (s *Store) Count() (int, error) {
	if !s.enabled {
		return 0, nil
	}
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM news_records").Scan(&n)
	return n, err
}
