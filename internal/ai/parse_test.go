package ai

import (
	"testing"
)

func TestCleanContentStripsCodeFence(t *testing.T) {
	in := "```json\n{\"relevant\": true}\n```"
	got := CleanContent(in)
	if got != `{"relevant": true}` {
		t.Errorf("CleanContent = %q", got)
	}
}

func TestCleanContentStripsJSONPrefix(t *testing.T) {
	in := "json: {\"a\": 1}"
	got := CleanContent(in)
	if got != `{"a": 1}` {
		t.Errorf("CleanContent = %q", got)
	}
}

func TestCleanContentLeavesPlainTextAlone(t *testing.T) {
	in := "just a plain sentence"
	if got := CleanContent(in); got != in {
		t.Errorf("CleanContent = %q, want unchanged", got)
	}
}

func TestDecodeLooseStrict(t *testing.T) {
	got := DecodeLoose(`{"relevant": true, "reason": "x"}`)
	obj, ok := got.(map[string]any)
	if !ok || obj["relevant"] != true {
		t.Errorf("strict decode failed: %#v", got)
	}
}

func TestDecodeLooseScansForFirstObject(t *testing.T) {
	got := DecodeLoose(`The verdict is: {"relevant": false, "reason": "off-topic"} hope that helps!`)
	obj, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %#v", got)
	}
	if obj["reason"] != "off-topic" {
		t.Errorf("reason = %v", obj["reason"])
	}
}

func TestDecodeLooseArray(t *testing.T) {
	got := DecodeLoose(`prefix [1, 2, 3]`)
	arr, ok := got.([]any)
	if !ok || len(arr) != 3 {
		t.Errorf("expected 3-element array, got %#v", got)
	}
}

func TestDecodeLooseNothingParses(t *testing.T) {
	for _, in := range []string{"", "no json here", "{broken", "{{{"} {
		if got := DecodeLoose(in); got != nil {
			t.Errorf("DecodeLoose(%q) = %#v, want nil", in, got)
		}
	}
}

func TestParseObjectFencedWithTag(t *testing.T) {
	in := "```json\n{\"relevant\": true, \"matched_rules\": [\"r1\"], \"reason\": \"语义相关\"}\n```"
	obj := ParseObject(in)
	if obj == nil {
		t.Fatal("expected object")
	}
	if obj["relevant"] != true {
		t.Errorf("relevant = %v", obj["relevant"])
	}
}

func TestParseObjectRejectsArrays(t *testing.T) {
	if obj := ParseObject(`[1, 2]`); obj != nil {
		t.Errorf("arrays should not count as objects, got %#v", obj)
	}
}

func TestAsIntRounding(t *testing.T) {
	cases := map[string]struct {
		in   any
		want int
	}{
		"float":    {in: float64(2.6), want: 3},
		"negative": {in: float64(-1.5), want: -2},
		"quoted":   {in: "4", want: 4},
		"garbage":  {in: "abc", want: 0},
		"nil":      {in: nil, want: 0},
	}
	for name, tc := range cases {
		if got := asInt(tc.in); got != tc.want {
			t.Errorf("%s: asInt(%v) = %d, want %d", name, tc.in, got, tc.want)
		}
	}
}
