package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ChatRequest is one system+user exchange sent to a model.
type ChatRequest struct {
	System          string
	User            string
	Temperature     *float64
	ReasoningEffort string
}

// Usage is the token accounting reported by the API, when present.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the assistant text plus the raw decoded response body.
type ChatResult struct {
	Content string
	Usage   *Usage
	Raw     map[string]any
}

// ChatBackend abstracts the LLM endpoint so the prefilter and summarizer can
// share one client and tests can inject fakes without network.
type ChatBackend interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResult, error)
}

// OpenAIBackend talks to any OpenAI-compatible chat-completions endpoint.
// The raw response body is decoded into a generic map so callers can retain
// it verbatim; nonstandard request fields (reasoning_effort) are supported,
// which is why this speaks HTTP directly instead of going through an SDK.
type OpenAIBackend struct {
	BaseURL string
	Model   string
	APIKey  string

	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenAIBackend builds a backend with a fixed per-request timeout and an
// optional requests-per-second cap (0 disables limiting).
func NewOpenAIBackend(baseURL, model, apiKey string, timeout time.Duration, rps float64) *OpenAIBackend {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &OpenAIBackend{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

func (b *OpenAIBackend) Complete(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload := map[string]any{
		"model": b.Model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if req.ReasoningEffort != "" {
		payload["reasoning_effort"] = req.ReasoningEffort
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close chat response body", "error", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(respBody)
		if len(snippet) > 1000 {
			snippet = snippet[:1000]
		}
		return nil, fmt.Errorf("chat API status %d: %s", resp.StatusCode, snippet)
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}

	result := &ChatResult{Raw: raw, Usage: extractUsage(raw)}
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice := asObject(choices[0]); choice != nil {
			if msg := asObject(choice["message"]); msg != nil {
				result.Content = strings.TrimSpace(asString(msg["content"]))
			}
		}
	}
	return result, nil
}

func extractUsage(raw map[string]any) *Usage {
	obj := asObject(raw["usage"])
	if obj == nil {
		return nil
	}
	u := &Usage{
		PromptTokens:     asInt(obj["prompt_tokens"]),
		CompletionTokens: asInt(obj["completion_tokens"]),
		TotalTokens:      asInt(obj["total_tokens"]),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// logUsage records per-call token accounting, informative only.
func logUsage(stage, title string, usage *Usage) {
	if usage == nil {
		return
	}
	if title = strings.TrimSpace(title); title == "" {
		title = "untitled"
	}
	slog.Info("AI tokens", "stage", stage, "title", title,
		"prompt", usage.PromptTokens, "completion", usage.CompletionTokens, "total", usage.TotalTokens)
}
