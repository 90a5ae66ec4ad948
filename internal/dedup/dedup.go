// Package dedup remembers which news items have already been processed, so
// repeated runs do not re-summarize or re-notify the same article.
package dedup

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"newshound/internal/feed"
)

// Config is the `dedup:` section of config.yaml.
type Config struct {
	Enabled       *bool  `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

func (c *Config) normalize() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join("state", "news.db")
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 3
	}
}

func (c *Config) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Deduper is a SQLite-backed seen-set keyed by a hash of the item identity.
type Deduper struct {
	db        *sql.DB
	retention int
	enabled   bool
}

// Open creates the database (and its parent directory) if needed and prunes
// entries older than the retention window.
func Open(cfg Config) (*Deduper, error) {
	cfg.normalize()
	if !cfg.enabled() {
		return &Deduper{enabled: false}, nil
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dedup dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open dedup db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_articles (
			news_id      TEXT PRIMARY KEY,
			source       TEXT,
			title        TEXT,
			url          TEXT,
			processed_at TEXT
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create dedup table: %w", err)
	}
	d := &Deduper{db: db, retention: cfg.RetentionDays, enabled: true}
	if err := d.Prune(); err != nil {
		slog.Warn("dedup prune failed", "error", err)
	}
	return d, nil
}

func (d *Deduper) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// ID hashes the item identity key so long URLs stay a fixed-width column.
func ID(item *feed.Item) string {
	sum := sha1.Sum([]byte(item.Key()))
	return hex.EncodeToString(sum[:])
}

func (d *Deduper) IsSeen(item *feed.Item) (bool, error) {
	if !d.enabled {
		return false, nil
	}
	var one int
	err := d.db.QueryRow("SELECT 1 FROM processed_articles WHERE news_id = ?", ID(item)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Deduper) Mark(item *feed.Item) error {
	if !d.enabled {
		return nil
	}
	_, err := d.db.Exec(
		"INSERT OR REPLACE INTO processed_articles (news_id, source, title, url, processed_at) VALUES (?, ?, ?, ?, ?)",
		ID(item), item.Source, item.Title, item.URL, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// FilterNew returns the items not yet recorded, preserving input order.
// Lookup errors keep the item: losing state must never lose news.
func (d *Deduper) FilterNew(items []*feed.Item) []*feed.Item {
	if !d.enabled {
		return items
	}
	fresh := make([]*feed.Item, 0, len(items))
	for _, item := range items {
		seen, err := d.IsSeen(item)
		if err != nil {
			slog.Warn("dedup lookup failed, keeping item", "title", item.Title, "error", err)
			fresh = append(fresh, item)
			continue
		}
		if !seen {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

// Prune drops entries older than the retention window.
func (d *Deduper) Prune() error {
	if !d.enabled || d.retention <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retention).Format(time.RFC3339)
	_, err := d.db.Exec("DELETE FROM processed_articles WHERE processed_at < ?", cutoff)
	return err
}
