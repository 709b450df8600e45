package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a cached provider response stays valid unless the
// caller says otherwise.
const DefaultTTL = 30 * time.Minute

// Entry is one cached response. Expiry is evaluated lazily on Get; nothing
// sweeps the map proactively.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	TTL       time.Duration   `json:"ttl"`
}

func (e Entry) expired() bool {
	return e.TTL > 0 && time.Since(e.Timestamp) > e.TTL
}

// Cache maps request fingerprints to responses so repeated queries don't
// spend API quota. Safe for concurrent use; the last Put for a key wins.
// With a non-empty path the cache persists as JSON across sessions.
type Cache struct {
	path    string
	entries map[string]Entry
	mu      sync.RWMutex
}

// New creates a cache. path may be "" for a memory-only cache; otherwise
// an existing cache file is loaded and a corrupt one is silently replaced.
func New(path string) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]Entry),
	}

	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read cache: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &c.entries); err != nil {
				// Ignore corrupt cache, start fresh
				c.entries = make(map[string]Entry)
			}
		}
	}
	return c, nil
}

// Get unmarshals the cached value for key into target. An expired entry is
// a miss and is deleted on the spot.
func (c *Cache) Get(key string, target interface{}) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if !entry.expired() {
		if err := json.Unmarshal(entry.Data, target); err != nil {
			return false, fmt.Errorf("unmarshal cache entry: %w", err)
		}
		return true, nil
	}

	c.mu.Lock()
	// Re-check: a fresh Put may have replaced the entry while unlocked
	if e, exists := c.entries[key]; exists && e.expired() {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return false, nil
}

// Put stores value under key for ttl. ttl <= 0 uses DefaultTTL.
func (c *Cache) Put(key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	c.mu.Lock()
	c.entries[key] = Entry{
		Data:      data,
		Timestamp: time.Now(),
		TTL:       ttl,
	}
	c.mu.Unlock()

	return c.save()
}

// Remove deletes a specific entry.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return c.save()
}

// Clear drops every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	return c.save()
}

// Len reports how many entries are held, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) save() error {
	if c.path == "" {
		return nil
	}
	if dir := filepath.Dir(c.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	return os.WriteFile(c.path, data, 0644)
}

// BuildKey joins parts into a readable semantic key.
func BuildKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// Fingerprint derives the deterministic cache key for one provider request:
// provider id, the query's normalized filter string, and the page number.
func Fingerprint(provider, normalizedQuery string, page int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", provider, normalizedQuery, page)
	return fmt.Sprintf("%s:%016x", provider, h.Sum64())
}
