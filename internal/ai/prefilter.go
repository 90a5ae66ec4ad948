package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"newshound/internal/feed"
	"newshound/internal/filter"
)

const defaultPrefilterSystemPrompt = "你是一名资深的中英文新闻审核员，擅长理解不同语言的同义表达并判断是否命中指定情报需求。"

const defaultPrefilterPrompt = `请判断下面的新闻是否与任一情报规则语义相关（同义词、别名、翻译均算命中）。

新闻标题：{title}
来源：{source}
链接：{url}
内容摘要：
{summary}

情报规则（JSON）：
{rules}

仅输出 JSON：{"relevant": true/false, "matched_rules": ["规则名"], "reason": "简要原因"}`

// PrefilterConfig is the `ai_prefilter:` section of config.yaml. BaseURL,
// Model and APIKey fall back to the `ai:` section when unset.
type PrefilterConfig struct {
	Enabled            bool     `yaml:"enabled"`
	BaseURL            string   `yaml:"base_url"`
	Model              string   `yaml:"model"`
	APIKey             string   `yaml:"api_key"`
	PromptFile         string   `yaml:"prompt_file"`
	SystemPrompt       string   `yaml:"system_prompt"`
	Temperature        *float64 `yaml:"temperature"`
	ReasoningEffort    string   `yaml:"reasoning_effort"`
	TimeoutSec         int      `yaml:"timeout_sec"`
	IncludeArticleBody bool     `yaml:"include_article_body"`
	MaxTextChars       int      `yaml:"max_text_chars"`
	LogRejections      bool     `yaml:"log_rejections"`
	FailOpenOnError    *bool    `yaml:"fail_open_on_error"`
	MaxWorkers         int      `yaml:"max_workers"`
}

func (c *PrefilterConfig) normalize() {
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 30
	}
	if c.MaxTextChars <= 0 {
		c.MaxTextChars = 300
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 3
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultPrefilterSystemPrompt
	}
}

func (c *PrefilterConfig) failOpen() bool {
	return c.FailOpenOnError == nil || *c.FailOpenOnError
}

// Prefilter is the semantic relevance gate run before the summarizer. It
// evaluates the same rule definitions as the keyword engine, but by asking
// the model rather than by substring matching.
type Prefilter struct {
	cfg     PrefilterConfig
	backend ChatBackend
	prompt  string
	hasKey  bool
}

// NewPrefilter wires the prefilter. A nil backend disables it.
func NewPrefilter(cfg PrefilterConfig, backend ChatBackend, hasKey bool) *Prefilter {
	cfg.normalize()
	prompt := defaultPrefilterPrompt
	if cfg.PromptFile != "" {
		if data, err := os.ReadFile(cfg.PromptFile); err == nil {
			prompt = string(data)
		} else {
			slog.Warn("prefilter prompt file unreadable, using builtin template", "path", cfg.PromptFile, "error", err)
		}
	}
	return &Prefilter{cfg: cfg, backend: backend, prompt: prompt, hasKey: hasKey}
}

// Apply runs the semantic gate. Identity passthrough unless the prefilter is
// enabled with a credential, the keyword rule set is enabled, and at least
// one rule is enabled. Output preserves input order.
func (p *Prefilter) Apply(ctx context.Context, items []*feed.Item, rules *filter.RuleSet) []*feed.Item {
	if !p.cfg.Enabled || !p.hasKey || p.backend == nil || rules == nil || !rules.Active() {
		return items
	}
	active := rules.EnabledRules()
	if len(active) == 0 || len(items) == 0 {
		return items
	}

	verdicts := p.evaluateBatch(ctx, items, active)

	kept := make([]*feed.Item, 0, len(items))
	removed := 0
	total := len(items)
	for i, item := range items {
		result := verdicts[i]
		raw := item.EnsureRaw()
		switch {
		case result == nil:
			if p.cfg.failOpen() {
				slog.Warn("AI prefilter got no verdict, keeping by policy", "index", i+1, "total", total, "title", itemLabel(item))
				raw[feed.RawPrefilterOK] = true
				raw[feed.RawPrefilterReason] = "AI 预过滤无返回，默认保留"
				raw[feed.RawPrefilterError] = "no_result"
				kept = append(kept, item)
			} else {
				removed++
				slog.Warn("AI prefilter got no verdict, dropping by policy", "index", i+1, "total", total, "title", itemLabel(item))
				raw[feed.RawPrefilterOK] = false
				raw[feed.RawPrefilterError] = "no_result"
			}
		case result.Relevant:
			raw[feed.RawPrefilterOK] = true
			if len(result.MatchedRules) > 0 {
				raw[feed.RawPrefilterRules] = result.MatchedRules
			}
			if result.Reason != "" {
				raw[feed.RawPrefilterReason] = result.Reason
			}
			kept = append(kept, item)
			slog.Info("AI prefilter kept item", "index", i+1, "total", total, "title", itemLabel(item))
		default:
			removed++
			raw[feed.RawPrefilterOK] = false
			if result.Reason != "" {
				raw[feed.RawPrefilterReason] = result.Reason
			}
			slog.Info("AI prefilter dropped item", "index", i+1, "total", total, "title", itemLabel(item))
			if p.cfg.LogRejections {
				slog.Debug("AI prefilter rejection", "source", item.Source, "title", item.Title, "reason", result.Reason)
			}
		}
	}
	if removed > 0 {
		slog.Info("AI prefilter finished", "removed", removed, "kept", len(kept))
	}
	return kept
}

// evaluateBatch fans the per-item calls across a bounded worker pool and
// returns verdicts indexed by input position, so output order never depends
// on completion order.
func (p *Prefilter) evaluateBatch(ctx context.Context, items []*feed.Item, rules []filter.Rule) []*PrefilterResult {
	verdicts := make([]*PrefilterResult, len(items))
	workers := p.cfg.MaxWorkers
	if workers > len(items) {
		workers = len(items)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, item := range items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("prefilter task panicked", "title", item.Title, "panic", r)
					verdicts[idx] = nil
				}
			}()
			verdicts[idx] = p.evaluateOne(gctx, item, rules)
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

func (p *Prefilter) evaluateOne(ctx context.Context, item *feed.Item, rules []filter.Rule) *PrefilterResult {
	result, err := p.backend.Complete(ctx, ChatRequest{
		System:          p.cfg.SystemPrompt,
		User:            p.renderPrompt(item, rules),
		Temperature:     p.cfg.Temperature,
		ReasoningEffort: p.cfg.ReasoningEffort,
	})
	if err != nil {
		slog.Warn("AI prefilter request failed", "title", itemLabel(item), "error", err)
		return nil
	}
	logUsage("prefilter", item.Title, result.Usage)

	parsed := ParseObject(result.Content)
	if parsed == nil {
		return nil
	}
	matched := make([]string, 0)
	for _, name := range asStringSlice(parsed["matched_rules"]) {
		matched = append(matched, name)
	}
	return &PrefilterResult{
		Relevant:     asBool(parsed["relevant"]),
		MatchedRules: matched,
		Reason:       asString(parsed["reason"]),
	}
}

// ruleSpec is the serialized rule shape embedded into the prompt.
type ruleSpec struct {
	Name   string `json:"name"`
	AllOf  []any  `json:"all_of"`
	AnyOf  []any  `json:"any_of"`
	NoneOf []any  `json:"none_of"`
}

func (p *Prefilter) renderPrompt(item *feed.Item, rules []filter.Rule) string {
	specs := make([]ruleSpec, 0, len(rules))
	for _, r := range rules {
		specs = append(specs, ruleSpec{
			Name:   r.Name,
			AllOf:  termsToJSON(r.AllOf),
			AnyOf:  termsToJSON(r.AnyOf),
			NoneOf: termsToJSON(r.NoneOf),
		})
	}
	rulesJSON, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		rulesJSON = []byte("[]")
	}
	values := map[string]string{
		"title":   item.Title,
		"summary": p.selectText(item),
		"rules":   string(rulesJSON),
		"source":  item.Source,
		"url":     item.URL,
	}
	rendered := p.prompt
	for key, val := range values {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", val)
	}
	return rendered
}

func termsToJSON(terms []filter.Term) []any {
	out := make([]any, 0, len(terms))
	for _, t := range terms {
		if t.Group != nil {
			out = append(out, t.Group)
		} else {
			out = append(out, t.Keyword)
		}
	}
	return out
}

// selectText picks the best available short text for the prompt, bounded by
// max_text_chars (counted in runes so multibyte text isn't cut mid-char).
func (p *Prefilter) selectText(item *feed.Item) string {
	var parts []string
	if item.Summary != "" {
		parts = append(parts, item.Summary)
	}
	if len(parts) == 0 {
		if fallback := item.ContentText(); fallback != "" {
			parts = append(parts, fallback)
		} else if desc := item.RawString("description"); desc != "" {
			parts = append(parts, desc)
		}
	}
	if p.cfg.IncludeArticleBody {
		if body := item.ContentText(); body != "" {
			parts = append(parts, body)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if runes := []rune(text); len(runes) > p.cfg.MaxTextChars {
		return string(runes[:p.cfg.MaxTextChars]) + "..."
	}
	if text != "" {
		return text
	}
	return item.Title
}

func itemLabel(item *feed.Item) string {
	switch {
	case item.Title != "":
		return item.Title
	case item.Source != "":
		return item.Source
	case item.URL != "":
		return item.URL
	default:
		return "unknown"
	}
}
