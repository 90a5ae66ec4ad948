package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"newshound/internal/ai"
	"newshound/internal/feed"
)

func ruleItem(title string, ruleIdx int, rule string) *feed.Item {
	item := &feed.Item{Source: "wire", Title: title, URL: "https://x/" + title}
	if rule != "" {
		item.Raw = map[string]any{
			feed.RawMatchedRule:      rule,
			feed.RawMatchedRuleIndex: ruleIdx,
		}
	}
	return item
}

func TestFormatMessagesGroupsAndBatches(t *testing.T) {
	c := NewClient(Config{Enable: true, ItemsPerMessage: 2}, nil)
	items := []*feed.Item{
		ruleItem("b1", 1, "markets"),
		ruleItem("a1", 0, "geo"),
		ruleItem("u1", 0, ""),
		ruleItem("a2", 0, "geo"),
	}

	messages := c.formatMessages(items, nil, styleText)
	if len(messages) != 2 {
		t.Fatalf("4 items / batch 2: want 2 messages, got %d", len(messages))
	}
	joined := strings.Join(messages, "\n===\n")

	// Rule groups come in rule order, unmatched items last.
	geoPos := strings.Index(joined, "[geo]")
	marketsPos := strings.Index(joined, "[markets]")
	unmatchedPos := strings.Index(joined, "[未分类]")
	if geoPos == -1 || marketsPos == -1 || unmatchedPos == -1 {
		t.Fatalf("missing group headers:\n%s", joined)
	}
	if !(geoPos < marketsPos && marketsPos < unmatchedPos) {
		t.Errorf("group order wrong:\n%s", joined)
	}
	// Stable within a group: a1 before a2.
	if strings.Index(joined, "a1") > strings.Index(joined, "a2") {
		t.Error("original order inside a group must be preserved")
	}
	// Header only when the group changes.
	if strings.Count(joined, "[geo]") != 1 {
		t.Errorf("group header repeated:\n%s", joined)
	}
}

func TestRenderBlockWithAISummary(t *testing.T) {
	c := NewClient(Config{Enable: true}, nil)
	item := ruleItem("headline", 0, "geo")
	summary := &ai.Summary{
		Source:    "wire",
		Title:     "headline",
		URL:       item.URL,
		Summary:   "line one\nline two\nline three\nline four",
		Sentiment: &ai.Sentiment{Label: ai.SentimentNegative, Level: "高", Score: 4},
		Keywords:  []string{"tariff", "export"},
		Entities:  []ai.Entity{{Text: "ECB", Type: "org"}, {Text: "Fed"}},
		IsAI:      true,
	}

	block := c.renderBlock(item, summary, styleText)
	if !strings.Contains(block, "tariff, export") {
		t.Errorf("keywords missing:\n%s", block)
	}
	if !strings.Contains(block, "情绪：消极🟥｜等级：高｜指数：4") {
		t.Errorf("sentiment line missing:\n%s", block)
	}
	if !strings.Contains(block, "ECB(org)、Fed") {
		t.Errorf("entities missing:\n%s", block)
	}
	if strings.Contains(block, "line four") {
		t.Errorf("summary should be trimmed to three lines:\n%s", block)
	}
}

func TestRenderBlockWithoutSummaryUsesFallbacks(t *testing.T) {
	c := NewClient(Config{Enable: true}, nil)
	item := &feed.Item{Source: "wire", Title: "贸易战 升级 关税", URL: "https://x/1"}

	block := c.renderBlock(item, lookupSummary(nil, item), styleText)
	if !strings.Contains(block, "暂无摘要") {
		t.Errorf("missing summary placeholder:\n%s", block)
	}
	if !strings.Contains(block, "贸易战") {
		t.Errorf("fallback keywords should come from the title:\n%s", block)
	}
	if strings.Contains(block, "情绪") {
		t.Errorf("no sentiment line without AI payload:\n%s", block)
	}
}

func TestTelegramBlockEscapesHTML(t *testing.T) {
	c := NewClient(Config{Enable: true}, nil)
	item := &feed.Item{Source: "wire", Title: `A <b>bold</b> & "quoted" claim`, URL: "https://x/1"}

	block := c.renderBlock(item, lookupSummary(nil, item), styleTelegram)
	if strings.Contains(block, "<b>bold</b>") {
		t.Errorf("title HTML must be escaped:\n%s", block)
	}
	if !strings.Contains(block, "&lt;b&gt;bold&lt;/b&gt;") {
		t.Errorf("escaped title missing:\n%s", block)
	}
	if !strings.Contains(block, `<a href="https://x/1">`) {
		t.Errorf("link markup missing:\n%s", block)
	}
}

func TestSendDeliversToWebhooksAndTelegram(t *testing.T) {
	var mu sync.Mutex
	payloads := map[string][]string{}
	record := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			payloads[name] = append(payloads[name], string(body))
			mu.Unlock()
		}
	}
	feishu := httptest.NewServer(record("feishu"))
	defer feishu.Close()
	telegram := httptest.NewServer(record("telegram"))
	defer telegram.Close()

	c := NewClient(Config{
		Enable:          true,
		ItemsPerMessage: 10,
		RetryAttempts:   1,
		Feishu:          WebhookConfig{WebhookURL: feishu.URL},
		Telegram:        TelegramConfig{BotToken: "tok", ChatID: "42"},
	}, nil)
	c.telegramAPI = telegram.URL

	results := c.Send(context.Background(), []*feed.Item{ruleItem("headline", 0, "geo")}, nil)
	if !results["feishu"] || !results["telegram"] {
		t.Fatalf("results = %v", results)
	}

	mu.Lock()
	defer mu.Unlock()
	var feishuPayload map[string]any
	if err := json.Unmarshal([]byte(payloads["feishu"][0]), &feishuPayload); err != nil {
		t.Fatalf("feishu payload: %v", err)
	}
	if feishuPayload["msg_type"] != "text" {
		t.Errorf("feishu payload = %v", feishuPayload)
	}
	var tgPayload map[string]any
	if err := json.Unmarshal([]byte(payloads["telegram"][0]), &tgPayload); err != nil {
		t.Fatalf("telegram payload: %v", err)
	}
	if tgPayload["chat_id"] != "42" || tgPayload["parse_mode"] != "HTML" {
		t.Errorf("telegram payload = %v", tgPayload)
	}
}

func TestSendDisabledOrEmpty(t *testing.T) {
	c := NewClient(Config{Enable: false, Feishu: WebhookConfig{WebhookURL: "https://unused.invalid"}}, nil)
	if results := c.Send(context.Background(), []*feed.Item{ruleItem("x", 0, "")}, nil); len(results) != 0 {
		t.Errorf("disabled client sent: %v", results)
	}
	c = NewClient(Config{Enable: true, Feishu: WebhookConfig{WebhookURL: "https://unused.invalid"}}, nil)
	if results := c.Send(context.Background(), nil, nil); len(results) != 0 {
		t.Errorf("empty digest sent: %v", results)
	}
}

func TestSendReportsChannelFailure(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	c := NewClient(Config{
		Enable:        true,
		RetryAttempts: 1,
		DingTalk:      WebhookConfig{WebhookURL: down.URL},
	}, nil)
	results := c.Send(context.Background(), []*feed.Item{ruleItem("x", 0, "")}, nil)
	if results["dingtalk"] {
		t.Error("failing webhook should report false")
	}
}

func TestTrimSummary(t *testing.T) {
	long := strings.Repeat("字", 400)
	got := trimSummary(long)
	if len([]rune(got)) > 310 {
		t.Errorf("trimSummary left %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated text should end with ellipsis: %q", got[len(got)-12:])
	}
	if trimSummary("") != "暂无摘要" {
		t.Error("empty summary placeholder")
	}
	if trimSummary("short") != "short" {
		t.Error("short text must pass through")
	}
}
