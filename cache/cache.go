package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config controls cache construction.
type Config struct {
	// MaxEntries bounds the cache size. When full, the entry with the
	// oldest insertion time is evicted to make room. Default: 256.
	MaxEntries int

	// TTL is how long an entry stays fresh after insertion. Zero means
	// entries expire immediately: every Get after Set is a miss.
	TTL time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 256,
		TTL:        30 * time.Second,
	}
}

// Cache is a bounded in-memory response cache with lazy TTL expiry.
// Expired entries are removed when read, not by a background sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config

	// now is swappable in tests.
	now func() time.Time
}

type entry struct {
	value    []byte
	inserted time.Time
}

// New creates a cache with the given configuration.
func New(cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	return &Cache{
		entries: make(map[string]*entry),
		config:  cfg,
		now:     time.Now,
	}
}

// Get returns the cached value for key and whether it was present and
// fresh. A stale entry is deleted and reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, false
	}

	val := make([]byte, len(e.value))
	copy(val, e.value)
	return val, true
}

// Set stores a value under key. When the cache is full and the key is
// new, the entry with the oldest insertion time is evicted first.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val := make([]byte, len(value))
	copy(val, value)

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.config.MaxEntries {
		c.evictOldest()
	}
	c.entries[key] = &entry{
		value:    val,
		inserted: c.now(),
	}
}

// expired reports whether an entry is past its TTL. A non-positive TTL
// expires everything.
func (c *Cache) expired(e *entry) bool {
	if c.config.TTL <= 0 {
		return true
	}
	return c.now().Sub(e.inserted) >= c.config.TTL
}

// evictOldest removes the entry with the oldest insertion time.
// Must be called with the lock held.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.inserted.Before(oldest) {
			oldestKey = key
			oldest = e.inserted
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
}

// Len returns the current entry count, including entries that have
// expired but not yet been read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Key derives a stable cache key from the parts of a request that
// determine its response. Parameters are canonicalized by sorting, and
// body fields serialize with sorted keys, so two logically identical
// requests always hash to the same key regardless of map iteration
// order.
func Key(method, endpoint string, params map[string]string, body map[string]any) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(endpoint)
	b.WriteByte('\n')

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}
	b.WriteByte('\n')

	if len(body) > 0 {
		// encoding/json writes map keys in sorted order.
		data, err := json.Marshal(body)
		if err == nil {
			b.Write(data)
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
