// Package feed defines the normalized news item that every pipeline stage
// consumes. Fetchers produce Items; later stages annotate Raw and return
// filtered slices without taking ownership.
package feed

import (
	"strings"
)

// Raw keys written by pipeline stages.
const (
	RawContentText      = "content_text"
	RawMatchedRule      = "_matched_rule"
	RawMatchedRuleIndex = "_matched_rule_index"
	RawPrefilterOK      = "_prefilter_relevant"
	RawPrefilterRules   = "_prefilter_rules"
	RawPrefilterReason  = "_prefilter_reason"
	RawPrefilterError   = "_prefilter_error"
	RawSummaryBlocked   = "_ai_summary_blocked"
	RawSummaryError     = "_ai_summary_error"
)

// Item is a single normalized news entry.
type Item struct {
	Source      string
	Title       string
	URL         string
	Summary     string
	PublishedAt string
	Authors     []string
	Raw         map[string]any
}

// EnsureRaw returns the annotation map, allocating it on first use.
func (it *Item) EnsureRaw() map[string]any {
	if it.Raw == nil {
		it.Raw = make(map[string]any)
	}
	return it.Raw
}

// Key identifies an item for dedup and summary lookup: the URL when present,
// otherwise "source-title".
func (it *Item) Key() string {
	if it.URL != "" {
		return it.URL
	}
	return it.Source + "-" + it.Title
}

// ContentText returns the extracted article body, if a fetcher stored one.
func (it *Item) ContentText() string {
	if it.Raw == nil {
		return ""
	}
	if v, ok := it.Raw[RawContentText].(string); ok {
		return v
	}
	return ""
}

// CombinedText is the text the keyword rule engine matches against:
// title + summary + extracted body, newline-joined.
func (it *Item) CombinedText() string {
	parts := []string{it.Title, it.Summary, it.ContentText()}
	return strings.Join(parts, "\n")
}

// RawBool reports whether a raw annotation is set to true.
func (it *Item) RawBool(key string) bool {
	if it.Raw == nil {
		return false
	}
	v, ok := it.Raw[key].(bool)
	return ok && v
}

// RawString returns a raw annotation as a string, or "" when absent.
func (it *Item) RawString(key string) string {
	if it.Raw == nil {
		return ""
	}
	if v, ok := it.Raw[key].(string); ok {
		return v
	}
	return ""
}
