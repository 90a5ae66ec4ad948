// Package timeutil converts the many timestamp shapes sources emit
// (RFC3339, "Z" suffixed, bare datetimes, unix seconds or millis) into the
// configured display timezone.
package timeutil

import (
	"strconv"
	"strings"
	"time"
)

// DefaultDisplayFormat mirrors "%Y-%m-%d %H:%M".
const DefaultDisplayFormat = "2006-01-02 15:04"

// Config is the `timezone:` section of config.yaml.
type Config struct {
	Name          string  `yaml:"name"`
	OffsetHours   float64 `yaml:"offset_hours"`
	DisplayFormat string  `yaml:"display_format"`
}

// Helper renders timestamps in one configured timezone.
type Helper struct {
	loc    *time.Location
	format string
}

// NewHelper resolves the configured zone: IANA name first, fixed offset
// second, UTC as the final fallback.
func NewHelper(cfg Config) *Helper {
	loc := time.UTC
	if cfg.Name != "" {
		if l, err := time.LoadLocation(cfg.Name); err == nil {
			loc = l
		}
	} else if cfg.OffsetHours != 0 {
		loc = time.FixedZone("fixed", int(cfg.OffsetHours*3600))
	}
	format := cfg.DisplayFormat
	if format == "" {
		format = DefaultDisplayFormat
	}
	return &Helper{loc: loc, format: format}
}

// Location returns the resolved zone (UTC for a nil helper).
func (h *Helper) Location() *time.Location {
	if h == nil || h.loc == nil {
		return time.UTC
	}
	return h.loc
}

// Now returns the current time in the configured zone.
func (h *Helper) Now() time.Time {
	return time.Now().In(h.Location())
}

// ToISO re-renders value as RFC3339 in the configured zone; unparseable
// input is returned unchanged so callers never lose the original.
func (h *Helper) ToISO(value string) string {
	t, ok := Parse(value)
	if !ok {
		return value
	}
	return t.In(h.Location()).Format(time.RFC3339)
}

// ToDisplay renders value with the configured display format; unparseable
// input is returned unchanged.
func (h *Helper) ToDisplay(value string) string {
	t, ok := Parse(value)
	if !ok {
		return value
	}
	return t.In(h.Location()).Format(h.format)
}

// Parse accepts RFC3339 (with or without "Z"), bare datetimes (assumed UTC),
// and unix timestamps in seconds or milliseconds.
func Parse(value string) (time.Time, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Time{}, false
	}
	if isDigits(text) {
		raw, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(raw), true
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromUnix(raw float64) time.Time {
	seconds := raw
	if raw > 1e11 { // millisecond timestamps
		seconds = raw / 1000
	}
	return time.Unix(int64(seconds), 0).UTC()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
