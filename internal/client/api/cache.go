package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached read is served without the network.
const DefaultCacheTTL = 5 * time.Minute

// Entry is one cached response payload.
type Entry struct {
	Key      string
	Payload  []byte
	StoredAt time.Time
	ETag     string
}

// Cache is an in-memory response cache. Stale entries stay in place until
// overwritten, removed or cleared; Get ignores them, Peek does not.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{entries: make(map[string]Entry), ttl: ttl, now: time.Now}
}

// Get returns the entry only while it is younger than the TTL.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.StoredAt) >= c.ttl {
		return Entry{}, false
	}
	return e, true
}

// Peek returns the entry regardless of age.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Set stores payload under key and stamps it with the current time.
func (c *Cache) Set(key string, payload []byte, etag string) {
	c.mu.Lock()
	c.entries[key] = Entry{Key: key, Payload: payload, StoredAt: c.now(), ETag: etag}
	c.mu.Unlock()
}

func (c *Cache) Remove(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheKey derives the cache slot of a request. Params and body are
// serialized canonically so map key order never matters.
func CacheKey(method, url string, params map[string]any, body any) (string, error) {
	p, err := canonicalJSON(params)
	if err != nil {
		return "", fmt.Errorf("canonicalize params: %w", err)
	}
	b, err := canonicalJSON(body)
	if err != nil {
		return "", fmt.Errorf("canonicalize body: %w", err)
	}
	return strings.ToUpper(method) + " " + url + " " + p + " " + b, nil
}

// canonicalJSON round-trips v through a generic value; encoding/json writes
// map keys sorted, which makes the output independent of insertion order
// and of struct field order.
func canonicalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
