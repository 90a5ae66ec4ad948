package config

import (
	"os"
	"path/filepath"
	"testing"

	"newshound/internal/filter"
)

const sampleConfig = `
debug: false

fetch:
  max_workers: 2
  sources:
    - name: wire
      url: https://example.com/rss

filters:
  enabled: true
  default_action: deny
  rules:
    - name: geo
      action: allow
      all_of:
        - ["中国", "China"]
        - 台湾
      none_of:
        - 体育

ai:
  enabled: true
  base_url: https://llm.example.com/v1
  model: big-model
  api_key: cfg-key

ai_prefilter:
  enabled: true
  model: small-model

ai_filter:
  enabled: true
  categories:
    include: [finance]

scheduler:
  enabled: true
  cron: "*/30 * * * *"

timezone:
  name: Asia/Shanghai
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Fetch.Sources) != 1 || cfg.Fetch.Sources[0].Name != "wire" {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
	if !cfg.Filters.Enabled || cfg.Filters.DefaultAction != filter.ActionDeny {
		t.Errorf("filters = %+v", cfg.Filters)
	}
	rule := cfg.Filters.Rules[0]
	if len(rule.AllOf) != 2 || rule.AllOf[0].Group == nil || rule.AllOf[1].Keyword != "台湾" {
		t.Errorf("compound terms = %+v", rule.AllOf)
	}
	if cfg.AI.Model != "big-model" || !cfg.AIFilter.Enabled {
		t.Errorf("ai sections = %+v / %+v", cfg.AI, cfg.AIFilter)
	}
	if len(cfg.Scheduler.Cron) != 1 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Timezone.Name != "Asia/Shanghai" {
		t.Errorf("timezone = %+v", cfg.Timezone)
	}
}

func TestPrefilterInheritsAISettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AIPrefilter.BaseURL != "https://llm.example.com/v1" {
		t.Errorf("base_url not inherited: %q", cfg.AIPrefilter.BaseURL)
	}
	if cfg.AIPrefilter.APIKey != "cfg-key" {
		t.Errorf("api_key not inherited: %q", cfg.AIPrefilter.APIKey)
	}
	// Its own model wins over the summarizer's.
	if cfg.AIPrefilter.Model != "small-model" {
		t.Errorf("model = %q", cfg.AIPrefilter.Model)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Filters.Enabled || cfg.AI.Enabled || cfg.Scheduler.Enabled {
		t.Errorf("defaults should be all-off: %+v", cfg)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"bad action": `
filters:
  enabled: true
  rules:
    - name: r
      action: maybe
`,
		"bad provider": `
ai:
  provider: anthropic
`,
		"bad cron": `
scheduler:
  enabled: true
  cron: "every five minutes"
`,
		"bad yaml": "filters: [broken",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: Load should fail", name)
		}
	}
}
