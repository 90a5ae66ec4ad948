package ai

import (
	"log/slog"
	"strings"

	"newshound/internal/feed"
)

// ListConfig is an include/exclude pair of normalized value lists.
type ListConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// PostfilterConfig is the `ai_filter:` section of config.yaml: filtering on
// AI-derived topics and sentiment, available only after summarization.
type PostfilterConfig struct {
	Enabled    bool       `yaml:"enabled"`
	Categories ListConfig `yaml:"categories"`
	Sentiments ListConfig `yaml:"sentiments"`
}

// Postfilter filters summarized items by topics and sentiment label.
type Postfilter struct {
	enabled          bool
	categoryInclude  map[string]struct{}
	categoryExclude  map[string]struct{}
	sentimentInclude map[string]struct{}
	sentimentExclude map[string]struct{}
}

// NewPostfilter builds the stage. When the upstream summarizer is disabled
// the stage disables itself: there is no AI signal to filter on.
func NewPostfilter(cfg PostfilterConfig, summarizerEnabled bool) *Postfilter {
	return &Postfilter{
		enabled:          cfg.Enabled && summarizerEnabled,
		categoryInclude:  normalizeSet(cfg.Categories.Include),
		categoryExclude:  normalizeSet(cfg.Categories.Exclude),
		sentimentInclude: normalizeSet(cfg.Sentiments.Include),
		sentimentExclude: normalizeSet(cfg.Sentiments.Exclude),
	}
}

// Apply returns the retained items and the summary map narrowed to them.
// Disabled is a full passthrough of both arguments.
func (f *Postfilter) Apply(items []*feed.Item, summaries map[string]*Summary) ([]*feed.Item, map[string]*Summary) {
	if !f.enabled {
		return items, summaries
	}
	kept := make([]*feed.Item, 0, len(items))
	keptSummaries := make(map[string]*Summary, len(summaries))
	removed := 0
	for _, item := range items {
		// Hard exclusion set upstream by a fail-closed summarizer; checked
		// before any category or sentiment logic.
		if item.RawBool(feed.RawSummaryBlocked) {
			removed++
			slog.Info("AI summary blocked upstream, dropping", "source", item.Source, "title", item.Title)
			continue
		}
		summary := summaries[item.Key()]
		if f.shouldKeep(summary) {
			kept = append(kept, item)
			if summary != nil {
				keptSummaries[item.Key()] = summary
			}
		} else {
			removed++
			slog.Debug("AI postfilter dropped item", "source", item.Source, "title", item.Title)
		}
	}
	if removed > 0 {
		slog.Info("AI postfilter finished", "removed", removed, "kept", len(kept))
	}
	return kept, keptSummaries
}

func (f *Postfilter) shouldKeep(summary *Summary) bool {
	if summary == nil {
		// Absent data cannot satisfy a positive requirement; without
		// include lists its absence is harmless.
		return !f.requiresSummaryFields()
	}
	if summary.IsFallback() {
		// Fallback summaries carry no AI-derived signal to filter on.
		return true
	}
	return f.matchCategories(summary) && f.matchSentiment(summary)
}

func (f *Postfilter) matchCategories(summary *Summary) bool {
	topics := normalizeSet(summary.Topics)
	if len(f.categoryInclude) > 0 && !intersects(topics, f.categoryInclude) {
		return false
	}
	if len(f.categoryExclude) > 0 && intersects(topics, f.categoryExclude) {
		return false
	}
	return true
}

func (f *Postfilter) matchSentiment(summary *Summary) bool {
	label := ""
	if summary.Sentiment != nil {
		label = strings.ToLower(strings.TrimSpace(summary.Sentiment.Label))
	}
	if len(f.sentimentInclude) > 0 {
		if label == "" {
			return false
		}
		if _, ok := f.sentimentInclude[label]; !ok {
			return false
		}
	}
	if len(f.sentimentExclude) > 0 && label != "" {
		if _, ok := f.sentimentExclude[label]; ok {
			return false
		}
	}
	return true
}

func (f *Postfilter) requiresSummaryFields() bool {
	return len(f.categoryInclude) > 0 || len(f.sentimentInclude) > 0
}

func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if token := strings.ToLower(strings.TrimSpace(v)); token != "" {
			set[token] = struct{}{}
		}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
