// Package ai implements the LLM-backed pipeline stages: the semantic
// pre-filter, the summarizer, and the post-summary filter, plus the shared
// parsing of structured output from free-form model text.
package ai

// Meta keys written into Summary.Meta by the fallback path.
const (
	MetaFallbackNoAI   = "_fallback_no_ai"
	MetaFallbackReason = "_fallback_reason"
)

// Sentiment labels used by summaries and the post-filter.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentUnknown  = "unknown"
)

// Sentiment is the model's sentiment judgement for one item.
type Sentiment struct {
	Label  string `json:"label"`
	Reason string `json:"reason"`
	Level  string `json:"level"`
	Score  int    `json:"score"`
}

// Entity is a named entity extracted by the model.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Summary is the structured output of the summarizer for one news item.
// IsAI is false for fallback summaries built without a model response;
// the post-filter exempts those from AI-derived criteria.
type Summary struct {
	Source      string           `json:"source"`
	Title       string           `json:"title"`
	URL         string           `json:"url"`
	Summary     string           `json:"summary"`
	Sentiment   *Sentiment       `json:"sentiment,omitempty"`
	Keywords    []string         `json:"keywords"`
	KeyPoints   []string         `json:"key_points"`
	Entities    []Entity         `json:"entities"`
	Events      []map[string]any `json:"events"`
	Topics      []string         `json:"topics"`
	Meta        map[string]any   `json:"meta,omitempty"`
	RawResponse map[string]any   `json:"raw_response,omitempty"`
	IsAI        bool             `json:"is_ai"`
}

// IsFallback reports whether this summary was produced without the model.
func (s *Summary) IsFallback() bool {
	if s == nil || s.Meta == nil {
		return false
	}
	v, ok := s.Meta[MetaFallbackNoAI].(bool)
	return ok && v
}

// PrefilterResult is the structured verdict of the AI pre-filter for one item.
type PrefilterResult struct {
	Relevant     bool     `json:"relevant"`
	MatchedRules []string `json:"matched_rules"`
	Reason       string   `json:"reason"`
}
