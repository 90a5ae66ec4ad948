// Package fetch pulls news from the configured RSS feeds and enriches the
// fresh items with full article text.
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"newshound/internal/feed"
)

// SourceConfig is one entry of the `fetch.sources:` list.
type SourceConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	MaxItems int    `yaml:"max_items"`
	Enabled  *bool  `yaml:"enabled"`
}

func (s *SourceConfig) enabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Config is the `fetch:` section of config.yaml.
type Config struct {
	Sources         []SourceConfig `yaml:"sources"`
	MaxWorkers      int            `yaml:"max_workers"`
	TimeoutSec      int            `yaml:"timeout_sec"`
	MaxAgeHours     int            `yaml:"max_age_hours"`
	FetchBody       bool           `yaml:"fetch_body"`
	BodyConcurrency int            `yaml:"body_concurrency"`
	BodyMaxArticles int            `yaml:"body_max_articles"`
}

func (c *Config) normalize() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 30
	}
	if c.BodyConcurrency <= 0 {
		c.BodyConcurrency = 8
	}
	if c.BodyMaxArticles <= 0 {
		c.BodyMaxArticles = 10
	}
}

type Fetcher struct {
	cfg    Config
	parser *gofeed.Parser
}

func New(cfg Config) *Fetcher {
	cfg.normalize()
	return &Fetcher{cfg: cfg, parser: gofeed.NewParser()}
}

// Collect pulls every enabled source concurrently and merges the results in
// source order. A failing source logs and contributes nothing; it never
// aborts the run.
func (f *Fetcher) Collect(ctx context.Context) []*feed.Item {
	sources := make([]SourceConfig, 0, len(f.cfg.Sources))
	for _, src := range f.cfg.Sources {
		if src.enabled() && src.URL != "" {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return nil
	}

	perSource := make([][]*feed.Item, len(sources))
	sem := make(chan struct{}, f.cfg.MaxWorkers)
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			perSource[i] = f.fetchSource(ctx, src)
		}()
	}
	wg.Wait()

	var items []*feed.Item
	ok := 0
	for _, batch := range perSource {
		if batch != nil {
			ok++
		}
		items = append(items, batch...)
	}
	slog.Info("feeds processed", "ok", ok, "total", len(sources), "items", len(items))

	if f.cfg.FetchBody {
		f.fetchBodies(ctx, items)
	}
	return items
}

func (f *Fetcher) fetchSource(ctx context.Context, src SourceConfig) []*feed.Item {
	fctx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.TimeoutSec)*time.Second)
	defer cancel()

	parsed, err := f.parser.ParseURLWithContext(src.URL, fctx)
	if err != nil {
		slog.Warn("feed fetch failed", "source", src.Name, "url", src.URL, "error", err)
		return nil
	}
	name := src.Name
	if name == "" {
		name = parsed.Title
	}

	items := make([]*feed.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if src.MaxItems > 0 && len(items) >= src.MaxItems {
			break
		}
		item := f.convert(name, entry)
		if f.tooOld(item) {
			continue
		}
		items = append(items, item)
	}
	slog.Info("feed loaded", "source", name, "items", len(items))
	return items
}

func (f *Fetcher) convert(source string, entry *gofeed.Item) *feed.Item {
	item := &feed.Item{
		Source:  source,
		Title:   entry.Title,
		URL:     entry.Link,
		Summary: entry.Description,
		Raw:     map[string]any{},
	}
	if entry.PublishedParsed != nil {
		item.PublishedAt = entry.PublishedParsed.UTC().Format(time.RFC3339)
	} else if entry.Published != "" {
		item.PublishedAt = entry.Published
	}
	if item.PublishedAt != "" {
		item.Raw["published_at"] = item.PublishedAt
	}
	for _, author := range entry.Authors {
		if author != nil && author.Name != "" {
			item.Authors = append(item.Authors, author.Name)
		}
	}
	if entry.Content != "" {
		item.Raw[feed.RawContentText] = entry.Content
	}
	if entry.Description != "" {
		item.Raw["description"] = entry.Description
	}
	if len(entry.Categories) > 0 {
		item.Raw["tags"] = entry.Categories
	}
	return item
}

func (f *Fetcher) tooOld(item *feed.Item) bool {
	if f.cfg.MaxAgeHours <= 0 || item.PublishedAt == "" {
		return false
	}
	published, err := time.Parse(time.RFC3339, item.PublishedAt)
	if err != nil {
		return false
	}
	return time.Since(published) > time.Duration(f.cfg.MaxAgeHours)*time.Hour
}

// fetchBodies extracts full article text for the first BodyMaxArticles items
// that have none yet. Items whose feed already ships full content keep it.
func (f *Fetcher) fetchBodies(ctx context.Context, items []*feed.Item) {
	var targets []*feed.Item
	for _, item := range items {
		if len(targets) >= f.cfg.BodyMaxArticles {
			break
		}
		if item.URL != "" && item.ContentText() == "" {
			targets = append(targets, item)
		}
	}
	if len(targets) == 0 {
		return
	}

	sem := make(chan struct{}, f.cfg.BodyConcurrency)
	var wg sync.WaitGroup
	for _, item := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			article, err := ExtractArticle(ctx, item.URL)
			if err != nil {
				slog.Debug("article extraction failed", "url", item.URL, "error", err)
				return
			}
			item.EnsureRaw()[feed.RawContentText] = article.Content
		}()
	}
	wg.Wait()
}
