package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Article is the extracted full text of one news page.
type Article struct {
	Title   string
	Content string
	URL     string
}

var articleClient = &http.Client{Timeout: 15 * time.Second}

// ExtractArticle downloads a news page and extracts its readable body text.
func ExtractArticle(ctx context.Context, url string) (*Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "newshound/1.0 (+https://github.com/newshound)")

	resp, err := articleClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	content := extractContent(doc)
	if content == "" {
		return nil, fmt.Errorf("can't get content")
	}
	return &Article{
		Title:   extractTitle(doc),
		Content: content,
		URL:     url,
	}, nil
}

// extractContent walks common article selectors and keeps the first one that
// yields paragraphs; bare <p> tags are the last resort.
func extractContent(doc *goquery.Document) string {
	selectors := []string{
		"article p",
		".article-body p",
		".article-content p",
		".post-content p",
		".entry-content p",
		".story-body p",
		".content p",
		"main p",
		"p",
	}

	var paragraphs []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if text != "" && len(text) > 10 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			break
		}
	}
	return cleanContent(strings.Join(paragraphs, "\n\n"))
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return strings.TrimSpace(title)
	}
	return strings.TrimSpace(doc.Find("title").Text())
}

// cleanContent drops boilerplate lines that the paragraph selectors tend to
// pick up along with the body.
func cleanContent(content string) string {
	noise := []string{
		"cookie", "subscribe", "newsletter", "advertisement",
		"all rights reserved", "read more", "share this",
	}
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			lines = append(lines, "")
			continue
		}
		lowered := strings.ToLower(trimmed)
		skip := false
		for _, marker := range noise {
			if strings.Contains(lowered, marker) && len(trimmed) < 120 {
				skip = true
				break
			}
		}
		if !skip {
			lines = append(lines, trimmed)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
