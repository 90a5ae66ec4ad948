package timeutil

import (
	"testing"
	"time"
)

func TestParseShapes(t *testing.T) {
	cases := map[string]string{
		"2026-08-22T10:00:00Z":      "2026-08-22T10:00:00Z",
		"2026-08-22T10:00:00+08:00": "2026-08-22T02:00:00Z",
		"2026-08-22 10:00:00":       "2026-08-22T10:00:00Z", // bare datetime is UTC
		"2026-08-22 10:00":          "2026-08-22T10:00:00Z",
		"1787392800":                "2026-08-22T10:00:00Z", // unix seconds
		"1787392800000":             "2026-08-22T10:00:00Z", // unix millis
	}
	for in, want := range cases {
		got, ok := Parse(in)
		if !ok {
			t.Errorf("Parse(%q) failed", in)
			continue
		}
		if got.UTC().Format(time.RFC3339) != want {
			t.Errorf("Parse(%q) = %s, want %s", in, got.UTC().Format(time.RFC3339), want)
		}
	}

	for _, in := range []string{"", "   ", "yesterday", "2026-13-40"} {
		if _, ok := Parse(in); ok {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestToISOConvertsZone(t *testing.T) {
	h := NewHelper(Config{Name: "Asia/Shanghai"})
	got := h.ToISO("2026-08-22T10:00:00Z")
	if got != "2026-08-22T18:00:00+08:00" {
		t.Errorf("ToISO = %q", got)
	}
}

func TestToISOKeepsUnparseableInput(t *testing.T) {
	h := NewHelper(Config{})
	if got := h.ToISO("about an hour ago"); got != "about an hour ago" {
		t.Errorf("ToISO mangled unparseable input: %q", got)
	}
	if got := h.ToDisplay("about an hour ago"); got != "about an hour ago" {
		t.Errorf("ToDisplay mangled unparseable input: %q", got)
	}
}

func TestToDisplayUsesConfiguredFormat(t *testing.T) {
	h := NewHelper(Config{OffsetHours: 8})
	if got := h.ToDisplay("2026-08-22T10:00:00Z"); got != "2026-08-22 18:00" {
		t.Errorf("ToDisplay = %q", got)
	}

	h = NewHelper(Config{DisplayFormat: "01-02 15:04"})
	if got := h.ToDisplay("2026-08-22T10:00:00Z"); got != "08-22 10:00" {
		t.Errorf("custom format = %q", got)
	}
}

func TestFixedOffsetAndFallbacks(t *testing.T) {
	h := NewHelper(Config{OffsetHours: 5.5})
	_, offset := time.Now().In(h.Location()).Zone()
	if offset != int(5.5*3600) {
		t.Errorf("offset = %d", offset)
	}

	// Unknown IANA name falls back to UTC.
	h = NewHelper(Config{Name: "Not/AZone"})
	if h.Location() != time.UTC {
		t.Errorf("unknown zone should fall back to UTC, got %v", h.Location())
	}

	var nilHelper *Helper
	if nilHelper.Location() != time.UTC {
		t.Error("nil helper location should be UTC")
	}
}
