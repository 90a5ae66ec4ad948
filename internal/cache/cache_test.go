package cache

import (
	"testing"
	"time"
)

func TestSetGetRoundtrip(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Set("k", "value", time.Minute)
	got, ok := c.Get("k")
	if !ok || got != "value" {
		t.Errorf("Get = %v, %v; want value, true", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("missing key should not be found")
	}
}

func TestExpiredEntryNotReturned(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Set("k", 1, -time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should not be returned")
	}
}

func TestKeyIsStableAndDistinct(t *testing.T) {
	a := Key("title", "content")
	if a != Key("title", "content") {
		t.Error("same inputs should hash to the same key")
	}
	if a == Key("title", "other content") {
		t.Error("different content should hash to a different key")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Set("old", 1, -time.Second)
	c.Set("fresh", 2, time.Minute)
	c.cleanup()

	c.mu.RLock()
	_, oldThere := c.items["old"]
	_, freshThere := c.items["fresh"]
	c.mu.RUnlock()
	if oldThere {
		t.Error("cleanup should delete expired entries")
	}
	if !freshThere {
		t.Error("cleanup must keep unexpired entries")
	}
}
