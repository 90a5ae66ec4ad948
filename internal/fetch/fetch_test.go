package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"newshound/internal/feed"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Wire</title>
    <item>
      <title>First headline</title>
      <link>https://example.com/1</link>
      <description>first description</description>
      <pubDate>Sat, 22 Aug 2026 10:00:00 GMT</pubDate>
      <author>reporter@example.com (Jane Reporter)</author>
      <category>world</category>
    </item>
    <item>
      <title>Second headline</title>
      <link>https://example.com/2</link>
      <description>second description</description>
    </item>
    <item>
      <title>Third headline</title>
      <link>https://example.com/3</link>
    </item>
  </channel>
</rss>`

func TestCollectConvertsFeedItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	f := New(Config{Sources: []SourceConfig{{Name: "wire", URL: srv.URL}}})
	items := f.Collect(context.Background())
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d", len(items))
	}
	first := items[0]
	if first.Source != "wire" || first.Title != "First headline" || first.URL != "https://example.com/1" {
		t.Errorf("converted item = %+v", first)
	}
	if first.PublishedAt == "" || first.Raw["published_at"] != first.PublishedAt {
		t.Errorf("published_at not mirrored into raw: %+v", first.Raw)
	}
	if len(first.Authors) != 1 || first.Authors[0] != "Jane Reporter" {
		t.Errorf("authors = %v", first.Authors)
	}
	if first.RawString("description") != "first description" {
		t.Errorf("description raw = %v", first.Raw["description"])
	}
}

func TestCollectHonorsMaxItemsAndFailedSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer dead.Close()

	f := New(Config{Sources: []SourceConfig{
		{Name: "wire", URL: srv.URL, MaxItems: 1},
		{Name: "down", URL: dead.URL},
	}})
	items := f.Collect(context.Background())
	if len(items) != 1 || items[0].Title != "First headline" {
		t.Fatalf("want 1 item from the healthy source, got %d", len(items))
	}
}

func TestCollectSkipsDisabledSources(t *testing.T) {
	off := false
	f := New(Config{Sources: []SourceConfig{{Name: "off", URL: "https://unreachable.invalid/feed", Enabled: &off}}})
	if items := f.Collect(context.Background()); len(items) != 0 {
		t.Errorf("disabled source produced %d items", len(items))
	}
}

func TestExtractArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><head><title>page title</title></head><body>
			<h1>Real Headline</h1>
			<article>
				<p>First paragraph of the story with enough length.</p>
				<p>Subscribe to our newsletter!</p>
				<p>Second paragraph also long enough to keep.</p>
			</article>
		</body></html>`))
	}))
	defer srv.Close()

	article, err := ExtractArticle(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	if article.Title != "Real Headline" {
		t.Errorf("title = %q", article.Title)
	}
	if !strings.Contains(article.Content, "First paragraph") || !strings.Contains(article.Content, "Second paragraph") {
		t.Errorf("content = %q", article.Content)
	}
	if strings.Contains(strings.ToLower(article.Content), "newsletter") {
		t.Errorf("boilerplate survived: %q", article.Content)
	}
}

func TestExtractArticleErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	if _, err := ExtractArticle(context.Background(), srv.URL); err == nil {
		t.Error("non-200 status should error")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body><div>nothing</div></body></html>"))
	}))
	defer empty.Close()
	if _, err := ExtractArticle(context.Background(), empty.URL); err == nil {
		t.Error("page without paragraphs should error")
	}
}

func TestFetchBodiesFillsMissingContent(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body><article><p>Fetched body paragraph with content.</p></article></body></html>`))
	}))
	defer page.Close()

	f := New(Config{FetchBody: true})
	items := []*feed.Item{
		{Title: "needs body", URL: page.URL},
		{Title: "has body", URL: page.URL, Raw: map[string]any{feed.RawContentText: "already here"}},
	}
	f.fetchBodies(context.Background(), items)

	if !strings.Contains(items[0].ContentText(), "Fetched body") {
		t.Errorf("body not filled: %q", items[0].ContentText())
	}
	if items[1].ContentText() != "already here" {
		t.Errorf("existing body overwritten: %q", items[1].ContentText())
	}
}
