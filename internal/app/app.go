// Package app wires the pipeline stages together and drives one full run:
// fetch, normalize, dedup, filter, AI, persist, notify.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newshound/internal/ai"
	"newshound/internal/config"
	"newshound/internal/dedup"
	"newshound/internal/feed"
	"newshound/internal/fetch"
	"newshound/internal/filter"
	"newshound/internal/metrics"
	"newshound/internal/notify"
	"newshound/internal/storage"
	"newshound/internal/timeutil"
)

type App struct {
	cfg        *config.Config
	rules      *filter.RuleSet
	tz         *timeutil.Helper
	fetcher    *fetch.Fetcher
	prefilter  *ai.Prefilter
	summarizer *ai.Client
	postfilter *ai.Postfilter
	notifier   *notify.Client

	gemini *ai.GeminiBackend // shared backend owned by the app when provider=gemini
}

// New builds every stage from the loaded config. The AI backends are
// constructed here once and shared; a missing credential leaves the AI
// stages disabled without failing startup.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	tz := timeutil.NewHelper(cfg.Timezone)
	a := &App{
		cfg:     cfg,
		rules:   &cfg.Filters,
		tz:      tz,
		fetcher: fetch.New(cfg.Fetch),
	}

	summaryKey := cfg.AI.ResolveAPIKey()
	var summaryBackend ai.ChatBackend
	var prefilterBackend ai.ChatBackend
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.AI.Enabled && summaryKey != "" {
			backend, err := ai.NewGeminiBackend(ctx, summaryKey, cfg.AI.Model)
			if err != nil {
				return nil, fmt.Errorf("gemini backend: %w", err)
			}
			a.gemini = backend
			summaryBackend = backend
			prefilterBackend = backend
		}
	default:
		if summaryKey != "" {
			summaryBackend = ai.NewOpenAIBackend(
				cfg.AI.BaseURL, cfg.AI.Model, summaryKey,
				time.Duration(cfg.AI.TimeoutSec)*time.Second, cfg.AI.RequestsPerSec,
			)
		}
		if prefilterKey := resolveKey(cfg.AIPrefilter.APIKey); prefilterKey != "" {
			prefilterBackend = ai.NewOpenAIBackend(
				cfg.AIPrefilter.BaseURL, cfg.AIPrefilter.Model, prefilterKey,
				time.Duration(cfg.AIPrefilter.TimeoutSec)*time.Second, cfg.AI.RequestsPerSec,
			)
		}
	}

	a.summarizer = ai.NewClient(cfg.AI, summaryBackend, tz)
	a.prefilter = ai.NewPrefilter(cfg.AIPrefilter, prefilterBackend, prefilterBackend != nil)
	a.postfilter = ai.NewPostfilter(cfg.AIFilter, a.summarizer.Enabled())
	a.notifier = notify.NewClient(cfg.Notification, tz)
	return a, nil
}

// resolveKey applies the same environment override order as the summarizer.
func resolveKey(configured string) string {
	c := ai.ClientConfig{APIKey: configured}
	return c.ResolveAPIKey()
}

// Close releases background resources (summary cache, Gemini client).
func (a *App) Close() {
	if a.summarizer != nil {
		a.summarizer.Close()
	}
	if a.gemini != nil {
		a.gemini.Close()
	}
}

// RunOnce executes the full pipeline. Stages run strictly in order; AI
// failures degrade per their policies but the run always reaches the
// notification stage.
func (a *App) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.Global.RecordProcessingTime(time.Since(start))
	}()

	items := a.fetcher.Collect(ctx)
	metrics.Global.AddNewsFetched(len(items))
	slog.Info("news fetched", "items", len(items))
	a.normalizePublishTimes(items)

	deduper, err := dedup.Open(a.cfg.Dedup)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return fmt.Errorf("open deduper: %w", err)
	}
	defer deduper.Close()

	fresh := deduper.FilterNew(items)
	metrics.Global.AddDuplicatesFiltered(len(items) - len(fresh))
	slog.Info("fresh items", "count", len(fresh), "duplicates", len(items)-len(fresh))

	filtered := a.rules.Apply(fresh)
	metrics.Global.AddKeywordFiltered(len(fresh) - len(filtered))

	prefiltered := a.prefilter.Apply(ctx, filtered, a.rules)
	metrics.Global.AddPrefilterRejected(len(filtered) - len(prefiltered))

	summaries := map[string]*ai.Summary{}
	if a.summarizer.Enabled() && len(prefiltered) > 0 {
		targets := prefiltered
		if max := a.summarizer.MaxItems(); max > 0 && len(targets) > max {
			targets = targets[:max]
		}
		slog.Info("summarizing", "items", len(targets))
		results := a.summarizer.Summarize(ctx, targets)
		metrics.Global.AddSummariesGenerated(len(results))
		summaries = ai.SummaryMap(results)
	}

	final, finalSummaries := a.postfilter.Apply(prefiltered, summaries)
	metrics.Global.AddPostfilterRejected(len(prefiltered) - len(final))

	// Archive everything that passed the keyword stage, with whatever AI
	// output exists, even when the post-filter later suppressed it.
	if store, err := storage.Open(a.cfg.Storage); err != nil {
		slog.Error("storage unavailable, skipping archive", "error", err)
	} else {
		if err := store.SaveNews(filtered, summaries); err != nil {
			slog.Error("archive failed", "error", err)
		}
		store.Close()
	}

	if results := a.notifier.Send(ctx, final, finalSummaries); len(results) > 0 {
		slog.Info("notification results", "channels", results)
	}

	// Mark the keyword-filtered set, not just the notified one, so items the
	// AI stages rejected are not re-evaluated on the next run.
	for _, item := range filtered {
		if err := deduper.Mark(item); err != nil {
			slog.Warn("dedup mark failed", "title", item.Title, "error", err)
		}
	}

	metrics.Global.SetLastRun()
	return nil
}

// normalizePublishTimes rewrites each item's publish time into the
// configured zone, keeping the original value in raw.
func (a *App) normalizePublishTimes(items []*feed.Item) {
	for _, item := range items {
		if item.PublishedAt == "" {
			continue
		}
		converted := a.tz.ToISO(item.PublishedAt)
		if converted == "" || converted == item.PublishedAt {
			continue
		}
		raw := item.EnsureRaw()
		if _, exists := raw["original_published_at"]; !exists {
			raw["original_published_at"] = item.PublishedAt
		}
		raw["published_at"] = converted
		item.PublishedAt = converted
	}
}
