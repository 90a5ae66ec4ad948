package ai

import (
	"encoding/json"
	"math"
	"strings"
)

// CleanContent strips the decoration models habitually wrap around JSON
// answers: a markdown code fence and a leading "json" language tag.
func CleanContent(content string) string {
	text := strings.TrimSpace(content)
	text = stripCodeFence(text)
	text = stripJSONPrefix(text)
	return strings.TrimSpace(text)
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	inner := text[3:]
	if idx := strings.LastIndex(inner, "```"); idx != -1 {
		return strings.TrimSpace(inner[:idx])
	}
	return text
}

func stripJSONPrefix(text string) string {
	stripped := strings.TrimLeft(text, " \t\n")
	if len(stripped) >= 4 && strings.EqualFold(stripped[:4], "json") {
		return strings.TrimLeft(stripped[4:], " :\n")
	}
	return text
}

// DecodeLoose attempts a strict JSON decode of the cleaned text; on failure
// it scans for the earliest '{' or '[' and attempts a partial decode from
// that offset, tolerating trailing prose. Returns nil when nothing parses.
func DecodeLoose(text string) any {
	if text == "" {
		return nil
	}
	var out any
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out
	}
	for idx, ch := range text {
		if ch != '{' && ch != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[idx:]))
		var partial any
		if err := dec.Decode(&partial); err == nil {
			return partial
		}
	}
	return nil
}

// ParseObject runs CleanContent + DecodeLoose and keeps only object results.
// Both AI stages expect a JSON object; arrays and scalars count as
// unparseable.
func ParseObject(content string) map[string]any {
	parsed := DecodeLoose(CleanContent(content))
	if obj, ok := parsed.(map[string]any); ok {
		return obj
	}
	return nil
}

// helpers for reading loosely-typed decoded JSON

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, el := range raw {
		if s := asString(el); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n))
	case int:
		return n
	case string:
		// models occasionally quote numeric scores
		var f float64
		if err := json.Unmarshal([]byte(n), &f); err == nil {
			return int(math.Round(f))
		}
	}
	return 0
}

func asObject(v any) map[string]any {
	obj, _ := v.(map[string]any)
	return obj
}

func asObjectSlice(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		if obj, ok := el.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
