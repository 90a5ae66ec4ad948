// Package config loads the single config.yaml the whole pipeline runs from.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"newshound/internal/ai"
	"newshound/internal/dedup"
	"newshound/internal/fetch"
	"newshound/internal/filter"
	"newshound/internal/notify"
	"newshound/internal/schedule"
	"newshound/internal/storage"
	"newshound/internal/timeutil"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "config/config.yaml"

// MonitorConfig is the `monitor:` section: the optional HTTP endpoint
// exposing health and pipeline counters.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the parsed config.yaml. Each section struct lives with the
// package that consumes it; this type only composes them.
type Config struct {
	Debug        bool                `yaml:"debug"`
	Fetch        fetch.Config        `yaml:"fetch"`
	Filters      filter.RuleSet      `yaml:"filters"`
	AI           ai.ClientConfig     `yaml:"ai"`
	AIPrefilter  ai.PrefilterConfig  `yaml:"ai_prefilter"`
	AIFilter     ai.PostfilterConfig `yaml:"ai_filter"`
	Dedup        dedup.Config        `yaml:"dedup"`
	Storage      storage.Config      `yaml:"storage"`
	Notification notify.Config       `yaml:"notification"`
	Scheduler    schedule.Config     `yaml:"scheduler"`
	Timezone     timeutil.Config     `yaml:"timezone"`
	Monitor      MonitorConfig       `yaml:"monitor"`
}

// Load reads and validates the config file. A missing file yields a usable
// all-defaults config, matching how every stage treats absent sections.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills cross-section fallbacks: the prefilter inherits the
// summarizer's endpoint and credential unless it sets its own.
func (c *Config) applyDefaults() {
	if c.AIPrefilter.BaseURL == "" {
		c.AIPrefilter.BaseURL = c.AI.BaseURL
	}
	if c.AIPrefilter.Model == "" {
		c.AIPrefilter.Model = c.AI.Model
	}
	if c.AIPrefilter.APIKey == "" {
		c.AIPrefilter.APIKey = c.AI.APIKey
	}
	if os.Getenv("DEBUG") == "true" {
		c.Debug = true
	}
}

func (c *Config) Validate() error {
	if err := c.Filters.Validate(); err != nil {
		return err
	}
	switch c.AI.Provider {
	case "", "openai", "gemini":
	default:
		return fmt.Errorf("ai.provider must be openai or gemini, got %q", c.AI.Provider)
	}
	if c.Scheduler.Enabled {
		for _, expr := range c.Scheduler.Cron {
			if _, err := schedule.ParseCron(expr); err != nil {
				return err
			}
		}
	}
	return nil
}
