package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(DefaultConfig())

	c.Set("k1", []byte("v1"))

	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "v1" {
		t.Errorf("expected v1, got %q", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(Config{MaxEntries: 8, TTL: time.Minute})
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("k1", []byte("v1"))

	// Still fresh just inside the TTL.
	c.now = func() time.Time { return base.Add(59 * time.Second) }
	if _, ok := c.Get("k1"); !ok {
		t.Error("expected hit inside TTL")
	}

	// Stale at exactly the TTL; the entry is removed on read.
	c.now = func() time.Time { return base.Add(time.Minute) }
	if _, ok := c.Get("k1"); ok {
		t.Error("expected miss at TTL boundary")
	}
	if c.Len() != 0 {
		t.Errorf("expected stale entry removed, have %d entries", c.Len())
	}
}

func TestCache_ZeroTTLExpiresImmediately(t *testing.T) {
	c := New(Config{MaxEntries: 8})

	c.Set("k1", []byte("v1"))
	if _, ok := c.Get("k1"); ok {
		t.Error("zero TTL: every Get after Set must miss")
	}
}

func TestCache_EvictsOldestInsertion(t *testing.T) {
	c := New(Config{MaxEntries: 2, TTL: time.Minute})
	base := time.Now()

	c.now = func() time.Time { return base }
	c.Set("first", []byte("1"))
	c.now = func() time.Time { return base.Add(time.Second) }
	c.Set("second", []byte("2"))

	// Reading "first" must not protect it: eviction is by insertion
	// time, not recency of use.
	c.Get("first")

	c.now = func() time.Time { return base.Add(2 * time.Second) }
	c.Set("third", []byte("3"))

	if _, ok := c.Get("first"); ok {
		t.Error("expected oldest insertion evicted")
	}
	if _, ok := c.Get("second"); !ok {
		t.Error("second entry should survive")
	}
	if _, ok := c.Get("third"); !ok {
		t.Error("third entry should be present")
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New(Config{MaxEntries: 2, TTL: time.Minute})

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("a", []byte("updated"))

	if c.Len() != 2 {
		t.Errorf("expected 2 entries after overwrite, got %d", c.Len())
	}
	got, ok := c.Get("a")
	if !ok || string(got) != "updated" {
		t.Errorf("expected updated value, got %q (ok=%v)", got, ok)
	}
}

func TestCache_Purge(t *testing.T) {
	c := New(Config{MaxEntries: 8, TTL: time.Minute})

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Purge()

	if c.Len() != 0 {
		t.Errorf("expected empty cache after Purge, got %d entries", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Purge")
	}
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c := New(Config{MaxEntries: 8, TTL: time.Minute})

	c.Set("k", []byte("original"))
	got, _ := c.Get("k")
	got[0] = 'X'

	again, _ := c.Get("k")
	if string(again) != "original" {
		t.Error("cached value mutated through returned slice")
	}
}

func TestKey_Stable(t *testing.T) {
	k1 := Key("GET", "/api/v1/runs/42", map[string]string{"skip": "0", "limit": "100"}, nil)
	k2 := Key("GET", "/api/v1/runs/42", map[string]string{"limit": "100", "skip": "0"}, nil)
	if k1 != k2 {
		t.Error("identical requests with different map order must share a key")
	}

	b1 := Key("POST", "/api/v1/runs", nil, map[string]any{"prompt": "p", "parent": 7})
	b2 := Key("POST", "/api/v1/runs", nil, map[string]any{"parent": 7, "prompt": "p"})
	if b1 != b2 {
		t.Error("identical bodies with different map order must share a key")
	}
}

func TestKey_Distinguishes(t *testing.T) {
	base := Key("GET", "/api/v1/runs/42", nil, nil)

	if Key("POST", "/api/v1/runs/42", nil, nil) == base {
		t.Error("method must affect the key")
	}
	if Key("GET", "/api/v1/runs/43", nil, nil) == base {
		t.Error("endpoint must affect the key")
	}
	if Key("GET", "/api/v1/runs/42", map[string]string{"limit": "10"}, nil) == base {
		t.Error("params must affect the key")
	}
	if Key("GET", "/api/v1/runs/42", nil, map[string]any{"x": 1}) == base {
		t.Error("body must affect the key")
	}
}
