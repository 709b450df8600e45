package cache

import (
	"path/filepath"
	"testing"
	"time"
)

type payload struct {
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

func TestCache_PutGet(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	in := payload{Title: "1986 Fleer Jordan", Price: 125.50}
	if err := c.Put("k", in, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	var out payload
	found, err := c.Get("k", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected hit immediately after put")
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	c, _ := New("")
	if err := c.Put("k", payload{Price: 1}, 20*time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	var out payload
	found, err := c.Get("k", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("expected miss after TTL elapsed")
	}
	// Lazy eviction removed the entry
	if c.Len() != 0 {
		t.Errorf("expected 0 entries after expiry lookup, got %d", c.Len())
	}
}

func TestCache_LastPutWins(t *testing.T) {
	c, _ := New("")
	c.Put("k", payload{Price: 1}, time.Minute)
	c.Put("k", payload{Price: 2}, time.Minute)

	var out payload
	if found, _ := c.Get("k", &out); !found {
		t.Fatal("expected hit")
	}
	if out.Price != 2 {
		t.Errorf("expected latest value, got %v", out.Price)
	}
}

func TestCache_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c, err := New(path)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if err := c.Put("k", payload{Title: "persisted"}, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload cache: %v", err)
	}
	var out payload
	if found, _ := reloaded.Get("k", &out); !found {
		t.Fatal("expected entry to survive reload")
	}
	if out.Title != "persisted" {
		t.Errorf("got %q", out.Title)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("ebay", "jordan fleer|0.00-500.00|max=50|days=30", 1)
	b := Fingerprint("ebay", "jordan fleer|0.00-500.00|max=50|days=30", 1)
	if a != b {
		t.Error("same request must fingerprint identically")
	}

	if a == Fingerprint("ebay", "jordan fleer|0.00-500.00|max=50|days=30", 2) {
		t.Error("different page must change the fingerprint")
	}
	if a == Fingerprint("cardpro", "jordan fleer|0.00-500.00|max=50|days=30", 1) {
		t.Error("different provider must change the fingerprint")
	}
}
