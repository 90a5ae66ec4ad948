package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"newshound/internal/cache"
	"newshound/internal/feed"
	"newshound/internal/timeutil"
)

const defaultSummaryPrompt = "请总结以下新闻：\n标题：{title}\n来源：{source}\n内容：{content}\n链接：{url}"

const defaultSummarySystemPrompt = "你是一名严谨的中文财经记者，请根据指定信息生成摘要。"

// RefusalPrefixes are known refusal openings in Chinese and English. The
// list is a best-effort heuristic, not a security boundary; operators can
// extend it for other models.
var RefusalPrefixes = []string{
	"抱歉",
	"很抱歉",
	"十分抱歉",
	"我无法",
	"我不能",
	"无法满足",
	"无法提供",
	"不支持",
	"不能满足",
	"未找到相关",
	"无权回答",
	"i'm sorry",
	"i am sorry",
	"sorry,",
	"i cannot",
	"i can’t",
	"cannot comply",
	"not able to",
	"sensitive content",
	"no relevant result",
	"this request is not",
}

// ClientConfig is the `ai:` section of config.yaml.
type ClientConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Provider        string   `yaml:"provider"` // openai (default) | gemini
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	APIKey          string   `yaml:"api_key"`
	PromptFile      string   `yaml:"prompt_file"`
	SystemPrompt    string   `yaml:"system_prompt"`
	IdentityHint    string   `yaml:"identity_hint"`
	Temperature     *float64 `yaml:"temperature"`
	ReasoningEffort string   `yaml:"reasoning_effort"`
	TimeoutSec      int      `yaml:"timeout_sec"`
	MaxItems        int      `yaml:"max_items"`
	MaxWorkers      int      `yaml:"max_workers"`
	UseArticleBody  *bool    `yaml:"use_article_body"`
	FailOpenOnError *bool    `yaml:"fail_open_on_error"`
	RequestsPerSec  float64  `yaml:"requests_per_sec"`
}

func (c *ClientConfig) normalize() {
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 30
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 5
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 3
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSummarySystemPrompt
	}
	if c.IdentityHint == "" {
		c.IdentityHint = "保持专业中立、关注风险敞口的分析视角"
	}
}

// ResolveAPIKey applies the environment override order used across the
// project: ARK_API_KEY, then OPENAI_API_KEY, then the config value.
func (c *ClientConfig) ResolveAPIKey() string {
	if key := os.Getenv("ARK_API_KEY"); key != "" {
		return key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return c.APIKey
}

func (c *ClientConfig) useArticleBody() bool {
	return c.UseArticleBody == nil || *c.UseArticleBody
}

func (c *ClientConfig) failOpen() bool {
	return c.FailOpenOnError == nil || *c.FailOpenOnError
}

// Client produces structured summaries for news items via a ChatBackend.
type Client struct {
	cfg      ClientConfig
	backend  ChatBackend
	prompt   string
	tz       *timeutil.Helper
	cache    *cache.Cache
	cacheTTL time.Duration
	mu       sync.Mutex // guards raw annotations under concurrent summarize
}

// NewClient wires a summarizer from config. A nil backend yields a disabled
// client; tests inject fake backends directly.
func NewClient(cfg ClientConfig, backend ChatBackend, tz *timeutil.Helper) *Client {
	cfg.normalize()
	prompt := defaultSummaryPrompt
	if cfg.PromptFile != "" {
		if data, err := os.ReadFile(cfg.PromptFile); err == nil {
			prompt = string(data)
		} else {
			slog.Warn("summary prompt file unreadable, using builtin template", "path", cfg.PromptFile, "error", err)
		}
	}
	return &Client{
		cfg:      cfg,
		backend:  backend,
		prompt:   prompt,
		tz:       tz,
		cache:    cache.New(),
		cacheTTL: 6 * time.Hour,
	}
}

// Enabled reports whether the summarizer will produce AI output.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.backend != nil && c.cfg.ResolveAPIKey() != ""
}

// MaxItems caps how many items a run sends to the model.
func (c *Client) MaxItems() int { return c.cfg.MaxItems }

// Summarize produces one summary per item, at most MaxWorkers requests in
// flight, results in input order. Per-item failures are resolved by the
// fail-open/fail-closed policy and never abort the batch; items whose
// failure resolved closed produce no summary and are marked in Raw.
func (c *Client) Summarize(ctx context.Context, items []*feed.Item) []*Summary {
	if !c.Enabled() || len(items) == 0 {
		return nil
	}
	results := make([]*Summary, len(items))
	workers := c.cfg.MaxWorkers
	if workers > len(items) {
		workers = len(items)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, item := range items {
		g.Go(func() error {
			defer func() {
				// One panicking task must not take the batch down.
				if r := recover(); r != nil {
					slog.Error("summarize task panicked", "title", item.Title, "panic", r)
					results[idx] = c.handleFailure(item, "panic")
				}
			}()
			results[idx] = c.summarizeOne(gctx, item)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Summary, 0, len(items))
	for _, s := range results {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *Client) summarizeOne(ctx context.Context, item *feed.Item) *Summary {
	key := cache.Key(item.Title, c.selectContent(item))
	if cached, ok := c.cache.Get(key); ok {
		if s, ok := cached.(*Summary); ok {
			slog.Debug("summary served from cache", "title", item.Title)
			return s
		}
	}

	result, err := c.backend.Complete(ctx, ChatRequest{
		System:          c.cfg.SystemPrompt,
		User:            c.renderPrompt(item),
		Temperature:     c.cfg.Temperature,
		ReasoningEffort: c.cfg.ReasoningEffort,
	})
	if err != nil {
		slog.Warn("AI summary request failed", "title", item.Title, "error", err)
		return c.handleFailure(item, "request_error")
	}
	logUsage("summary", item.Title, result.Usage)
	if result.Content == "" {
		slog.Warn("AI summary returned empty content", "title", item.Title)
		return c.handleFailure(item, "empty_content")
	}

	structured := ParseObject(result.Content)
	if structured == nil {
		// Plain-text answers still count as a summary.
		structured = map[string]any{"summary": CleanContent(result.Content)}
	}
	summaryText := asString(structured["summary"])
	if IsRefusal(summaryText) {
		slog.Warn("AI summary looks like a refusal, falling back", "title", item.Title)
		return c.handleFailure(item, "ai_refusal")
	}

	summary := c.buildSummary(item, structured, result)
	c.cache.Set(key, summary, c.cacheTTL)
	slog.Info("AI summary ready", "title", item.Title)
	return summary
}

func (c *Client) buildSummary(item *feed.Item, structured map[string]any, result *ChatResult) *Summary {
	meta := map[string]any{
		"title":        item.Title,
		"publish_time": c.publishTime(item),
		"source":       item.Source,
	}
	for k, v := range asObject(structured["meta"]) {
		meta[k] = v
	}

	title := asString(meta["title"])
	if title == "" {
		title = asString(structured["title"])
	}
	if title == "" {
		title = item.Title
	}

	summaryText := asString(structured["summary"])
	if summaryText == "" {
		summaryText = result.Content
	}

	entities := make([]Entity, 0)
	for _, obj := range asObjectSlice(structured["entities"]) {
		entities = append(entities, Entity{Text: asString(obj["text"]), Type: asString(obj["type"])})
	}

	return &Summary{
		Source:      item.Source,
		Title:       title,
		URL:         item.URL,
		Summary:     summaryText,
		Sentiment:   normalizeSentiment(structured["sentiment"]),
		Keywords:    asStringSlice(structured["keywords"]),
		KeyPoints:   asStringSlice(structured["key_points"]),
		Entities:    entities,
		Events:      asObjectSlice(structured["events"]),
		Topics:      asStringSlice(structured["topics"]),
		Meta:        meta,
		RawResponse: result.Raw,
		IsAI:        true,
	}
}

// handleFailure resolves a per-item failure: fail-open builds a non-AI
// fallback summary, fail-closed marks the item blocked and yields nothing.
func (c *Client) handleFailure(item *feed.Item, reason string) *Summary {
	if c.cfg.failOpen() {
		return c.fallbackSummary(item, reason)
	}
	c.mu.Lock()
	raw := item.EnsureRaw()
	raw[feed.RawSummaryBlocked] = true
	raw[feed.RawSummaryError] = reason
	c.mu.Unlock()
	return nil
}

func (c *Client) fallbackSummary(item *feed.Item, reason string) *Summary {
	snippet := fallbackSnippet(item)
	note := "（AI 摘要失败，展示原文片段）"
	text := note
	if snippet != "" {
		text = snippet + "\n\n" + note
	}
	return &Summary{
		Source:  item.Source,
		Title:   item.Title,
		URL:     item.URL,
		Summary: text,
		Sentiment: &Sentiment{
			Label: SentimentUnknown,
		},
		Keywords:  []string{},
		KeyPoints: []string{},
		Entities:  []Entity{},
		Events:    []map[string]any{},
		Topics:    []string{},
		Meta: map[string]any{
			"title":            item.Title,
			"publish_time":     c.publishTime(item),
			"source":           item.Source,
			MetaFallbackNoAI:   true,
			MetaFallbackReason: reason,
		},
		IsAI: false,
	}
}

func fallbackSnippet(item *feed.Item) string {
	candidates := []string{item.Summary, item.ContentText(), item.RawString("description"), item.Title}
	for _, text := range candidates {
		snippet := strings.TrimSpace(text)
		if snippet == "" {
			continue
		}
		runes := []rune(snippet)
		if len(runes) > 400 {
			return strings.TrimRight(string(runes[:400]), " ") + "..."
		}
		return snippet
	}
	return "该新闻暂无法生成 AI 摘要，请查看原文链接。"
}

// IsRefusal reports whether a summary opens like a known model refusal.
func IsRefusal(summaryText string) bool {
	text := strings.TrimSpace(summaryText)
	if text == "" {
		return true
	}
	head := strings.ToLower(text)
	if runes := []rune(head); len(runes) > 60 {
		head = string(runes[:60])
	}
	for _, prefix := range RefusalPrefixes {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

func (c *Client) renderPrompt(item *feed.Item) string {
	values := map[string]string{
		"title":         item.Title,
		"source":        item.Source,
		"summary":       item.Summary,
		"url":           item.URL,
		"content":       c.selectContent(item),
		"identity_hint": c.cfg.IdentityHint,
		"current_time":  c.currentTime(),
		"publish_time":  c.publishTime(item),
	}
	rendered := c.prompt
	for key, val := range values {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", val)
	}
	return rendered
}

func (c *Client) selectContent(item *feed.Item) string {
	if c.cfg.useArticleBody() {
		if body := item.ContentText(); body != "" {
			return body
		}
	}
	if item.Summary != "" {
		return item.Summary
	}
	if desc := item.RawString("description"); desc != "" {
		return desc
	}
	if body := item.ContentText(); body != "" {
		return body
	}
	return item.Title
}

func (c *Client) currentTime() string {
	if c.tz == nil {
		return time.Now().Format(timeutil.DefaultDisplayFormat)
	}
	return c.tz.Now().Format(timeutil.DefaultDisplayFormat)
}

func (c *Client) publishTime(item *feed.Item) string {
	if v := item.RawString("published_at"); v != "" {
		return v
	}
	if v := item.RawString("published"); v != "" {
		return v
	}
	return item.PublishedAt
}

func normalizeSentiment(value any) *Sentiment {
	switch v := value.(type) {
	case map[string]any:
		label := strings.ToLower(asString(v["label"]))
		if label == "" {
			label = SentimentNeutral
		}
		level := asString(v["level"])
		if level == "" {
			level = "中"
		}
		return &Sentiment{
			Label:  label,
			Reason: asString(v["reason"]),
			Level:  level,
			Score:  asInt(v["score"]),
		}
	case string:
		label := strings.ToLower(strings.TrimSpace(v))
		if label == "" {
			label = SentimentNeutral
		}
		return &Sentiment{Label: label, Level: "中"}
	default:
		return nil
	}
}

// Close releases the summary cache's background goroutine.
func (c *Client) Close() {
	c.cache.Stop()
}

// SummaryMap indexes summaries by their item key for post-filtering,
// persistence and notification lookup.
func SummaryMap(summaries []*Summary) map[string]*Summary {
	m := make(map[string]*Summary, len(summaries))
	for _, s := range summaries {
		key := s.URL
		if key == "" {
			key = fmt.Sprintf("%s-%s", s.Source, s.Title)
		}
		m[key] = s
	}
	return m
}
