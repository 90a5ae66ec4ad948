package notify

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"newshound/internal/ai"
	"newshound/internal/feed"
)

type style int

const (
	styleText style = iota
	styleMarkdown
	styleTelegram
)

// unmatchedRank sorts items without a rule annotation after every rule group.
const unmatchedRank = 1 << 20

// formatMessages renders the digest as a list of channel messages: items are
// grouped by matched keyword rule, each group introduced by a header, and the
// stream is cut into batches of items_per_message.
func (c *Client) formatMessages(items []*feed.Item, summaries map[string]*ai.Summary, st style) []string {
	if len(items) == 0 {
		return nil
	}
	separator := "\n\n\n"
	if st == styleTelegram {
		separator = "\n\n"
	}

	sorted := sortByRule(items)
	var batches []string
	var current []string
	lastGroup := ""
	lastRank := -1
	for _, item := range sorted {
		rank, name := groupKey(item)
		block := c.renderBlock(item, lookupSummary(summaries, item), st)
		if rank != lastRank || name != lastGroup {
			header := groupHeader(name, st)
			if block != "" {
				block = header + "\n\n" + block
			} else {
				block = header
			}
		}
		lastRank, lastGroup = rank, name
		current = append(current, block)
		if len(current) >= c.cfg.ItemsPerMessage {
			batches = append(batches, strings.Join(current, separator))
			current = nil
		}
	}
	if len(current) > 0 {
		batches = append(batches, strings.Join(current, separator))
	}
	return batches
}

// groupKey ranks an item by the index of the keyword rule that matched it.
func groupKey(item *feed.Item) (int, string) {
	rank := unmatchedRank
	name := "未分类"
	if item.Raw != nil {
		if idx, ok := item.Raw[feed.RawMatchedRuleIndex].(int); ok {
			rank = idx
		}
		if n := item.RawString(feed.RawMatchedRule); n != "" {
			name = n
		}
	}
	return rank, name
}

// sortByRule orders items by rule rank, keeping the original order inside
// each group.
func sortByRule(items []*feed.Item) []*feed.Item {
	sorted := make([]*feed.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, _ := groupKey(sorted[i])
		rj, _ := groupKey(sorted[j])
		return ri < rj
	})
	return sorted
}

func groupHeader(name string, st style) string {
	switch st {
	case styleTelegram:
		return fmt.Sprintf("<b>[%s]</b>", html.EscapeString(name))
	case styleMarkdown:
		return fmt.Sprintf("**[%s]**", name)
	default:
		return fmt.Sprintf("[%s]", name)
	}
}

// lookupSummary finds the item's summary, falling back to a bare non-AI
// wrapper so the renderer always has one to work with.
func lookupSummary(summaries map[string]*ai.Summary, item *feed.Item) *ai.Summary {
	if s := summaries[item.Key()]; s != nil {
		return s
	}
	return &ai.Summary{
		Source:  item.Source,
		Title:   item.Title,
		URL:     item.URL,
		Summary: item.Summary,
	}
}

func (c *Client) renderBlock(item *feed.Item, summary *ai.Summary, st style) string {
	summaryText := trimSummary(prepareSummaryText(summary, item))
	keywordsText := c.keywordsText(item, summary, summaryText)
	publishTime := c.publishTimeDisplay(item, summary)
	source := item.Source
	if summary.Meta != nil {
		if s, _ := summary.Meta["source"].(string); s != "" {
			source = s
		}
	}
	if source == "" {
		source = "Unknown"
	}

	var sentimentLine string
	var entityItems []string
	if summary.IsAI || summary.RawResponse != nil {
		sentimentLine = formatSentimentLine(summary.Sentiment)
		entityItems = entityStrings(summary, 3)
	}

	if st == styleTelegram {
		return c.renderTelegramBlock(item, keywordsText, publishTime, source, sentimentLine, entityItems, summaryText)
	}

	var block []string
	block = append(block,
		plainTitleWithLink(item),
		fmt.Sprintf("🌍 关键词：%s", orDefault(keywordsText, "未标注")),
		fmt.Sprintf("🕒 %s | 🏷 %s", orDefault(publishTime, "未知时间"), source),
	)
	if c.cfg.displaySummary() {
		block = append(block, "", "摘要：", summaryText)
	}
	block = append(block, "", sentimentLine)
	if len(entityItems) > 0 {
		block = append(block, fmt.Sprintf("*实体*: %s", strings.Join(entityItems, "、")))
	}
	var lines []string
	for _, line := range block {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func (c *Client) renderTelegramBlock(item *feed.Item, keywordsText, publishTime, source, sentimentLine string, entityItems []string, summaryText string) string {
	esc := html.EscapeString
	var lines []string
	lines = append(lines,
		telegramTitleWithLink(item),
		fmt.Sprintf("🌍 关键词：%s", orDefault(esc(keywordsText), "未标注")),
		fmt.Sprintf("🕒 %s | 🏷 %s", esc(orDefault(publishTime, "未知时间")), esc(source)),
	)
	if c.cfg.displaySummary() {
		lines = append(lines, "", "<b>摘要：</b>", esc(summaryText))
	}
	lines = append(lines, "", sentimentLine)
	if len(entityItems) > 0 {
		escaped := make([]string, len(entityItems))
		for i, e := range entityItems {
			escaped[i] = esc(e)
		}
		lines = append(lines, fmt.Sprintf("<b>实体</b>: %s", strings.Join(escaped, "、")))
	}
	var kept []string
	for _, line := range lines {
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func plainTitleWithLink(item *feed.Item) string {
	title := orDefault(item.Title, "未命名")
	if item.URL != "" {
		return fmt.Sprintf("📰 [%s](%s)", title, item.URL)
	}
	return "📰 " + title
}

func telegramTitleWithLink(item *feed.Item) string {
	title := html.EscapeString(orDefault(item.Title, "未命名"))
	if item.URL != "" {
		return fmt.Sprintf(`📰 <a href="%s">%s</a>`, html.EscapeString(item.URL), title)
	}
	return "📰 " + title
}

// prepareSummaryText prefers the AI summary, then the feed summary.
func prepareSummaryText(summary *ai.Summary, item *feed.Item) string {
	candidate := summary.Summary
	if candidate == "" {
		candidate = item.Summary
	}
	if strings.TrimSpace(candidate) == "" {
		return "暂无摘要"
	}
	return candidate
}

// trimSummary compresses a summary to at most maxLines lines and maxChars
// runes for chat-sized messages.
func trimSummary(text string) string {
	const maxLines, maxChars = 3, 300
	if text == "" {
		return "暂无摘要"
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		runes := []rune(text)
		if len(runes) > maxChars {
			return string(runes[:maxChars]) + "…"
		}
		return text
	}
	keep := lines
	if len(keep) > maxLines {
		keep = keep[:maxLines]
	}
	joined := strings.Join(keep, " ")
	runes := []rune(joined)
	truncated := joined
	if len(runes) > maxChars {
		truncated = strings.TrimRight(string(runes[:maxChars]), " ")
	}
	if len(lines) > maxLines || len(runes) > maxChars {
		truncated += " …"
	}
	return truncated
}

func (c *Client) keywordsText(item *feed.Item, summary *ai.Summary, summaryText string) string {
	keywords := summary.Keywords
	if len(keywords) == 0 {
		keywords = summary.KeyPoints
	}
	if len(keywords) == 0 && item.Raw != nil {
		switch tags := item.Raw["tags"].(type) {
		case []string:
			keywords = tags
		case []any:
			for _, tag := range tags {
				if s, ok := tag.(string); ok {
					keywords = append(keywords, s)
				}
			}
		}
	}
	var nonEmpty []string
	for _, kw := range keywords {
		if kw != "" {
			nonEmpty = append(nonEmpty, kw)
		}
	}
	if len(nonEmpty) > 0 {
		return strings.Join(nonEmpty, ", ")
	}
	return strings.Join(fallbackKeywords(item, summaryText, 5), ", ")
}

var keywordSplitter = regexp.MustCompile(`[\s,，。！？；:、|]+`)

// fallbackKeywords tokenizes title and summary when neither the model nor
// the feed supplied keywords.
func fallbackKeywords(item *feed.Item, summaryText string, max int) []string {
	var parts []string
	for _, part := range []string{item.Title, summaryText, item.ContentText()} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return nil
	}
	var tokens []string
	for _, token := range keywordSplitter.Split(text, -1) {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
		if len(tokens) >= max {
			break
		}
	}
	return tokens
}

func (c *Client) publishTimeDisplay(item *feed.Item, summary *ai.Summary) string {
	var raw string
	if summary.Meta != nil {
		raw, _ = summary.Meta["publish_time"].(string)
	}
	if raw == "" {
		raw = item.PublishedAt
	}
	if raw == "" {
		raw = item.RawString("published_at")
	}
	if raw == "" {
		raw = item.RawString("timestamp")
	}
	if c.tz != nil {
		if display := c.tz.ToDisplay(raw); display != "" {
			return display
		}
	}
	return raw
}

var sentimentLabels = map[string][2]string{
	ai.SentimentPositive: {"积极", "🟩"},
	ai.SentimentNegative: {"消极", "🟥"},
	ai.SentimentNeutral:  {"中性", "🟨"},
}

func formatSentimentLine(sentiment *ai.Sentiment) string {
	if sentiment == nil {
		return ""
	}
	labelCN, icon := "未知", "⚪️"
	if pair, ok := sentimentLabels[strings.ToLower(sentiment.Label)]; ok {
		labelCN, icon = pair[0], pair[1]
	}
	level := sentiment.Level
	if level == "" {
		level = "中"
	}
	return fmt.Sprintf("情绪：%s%s｜等级：%s｜指数：%d", labelCN, icon, level, sentiment.Score)
}

func entityStrings(summary *ai.Summary, limit int) []string {
	var formatted []string
	for _, entity := range summary.Entities {
		text := strings.TrimSpace(entity.Text)
		if text == "" {
			continue
		}
		if t := strings.TrimSpace(entity.Type); t != "" {
			formatted = append(formatted, fmt.Sprintf("%s(%s)", text, t))
		} else {
			formatted = append(formatted, text)
		}
		if len(formatted) >= limit {
			break
		}
	}
	return formatted
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
