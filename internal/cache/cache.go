// Package cache implements the ResponseCache (component F): a bounded,
// TTL-expiring memoization of idempotent model completions keyed by request
// fingerprint, with single-flight coalescing for concurrent callers racing
// the same fingerprint.
package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one cached completion, mirroring the data model's CacheEntry.
type Entry struct {
	Fingerprint       string
	CanonicalResponse []byte
	TokensIn          int
	TokensOut         int
	InsertedAt        time.Time
	TTL               time.Duration
	Hits              int
}

func (e *Entry) expired(now time.Time) bool {
	return now.After(e.InsertedAt.Add(e.TTL))
}

// size is what counts against the cache's byte budget: the stored response
// body plus a fixed per-entry overhead for bookkeeping fields.
func (e *Entry) size() int {
	const overhead = 64
	return len(e.CanonicalResponse) + overhead
}

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the entry count; 0 means unbounded by count.
	MaxEntries int
	// MaxBytes bounds total CanonicalResponse+overhead size; 0 means
	// unbounded by size.
	MaxBytes int
	// DefaultTTL is used when Put is called without an explicit ttl.
	DefaultTTL time.Duration
}

// DefaultOptions matches spec defaults: 5 minute TTL, no count/byte bound
// unless the caller sets one.
func DefaultOptions() Options {
	return Options{DefaultTTL: 5 * time.Minute}
}

// Cache is the ResponseCache. The zero value is not usable; use New.
type Cache struct {
	opts Options

	mu      sync.Mutex
	entries map[string]*list.Element // fingerprint -> element holding *Entry
	order   *list.List               // front = most recently used
	bytes   int

	group singleflight.Group
}

// New builds a Cache with the given options.
func New(opts Options) *Cache {
	return &Cache{
		opts:    opts,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached entry for fingerprint, or (nil, false) if absent or
// expired. A hit bumps the entry's LRU position and its hit counter.
func (c *Cache) Get(fingerprint string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry)
	if entry.expired(time.Now()) {
		c.removeElement(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	entry.Hits++
	return entry, true
}

// Put inserts or overwrites the entry for fingerprint, evicting by LRU and
// TTL until the cache is back within its bounds. ttl <= 0 uses the
// configured DefaultTTL.
func (c *Cache) Put(fingerprint string, response []byte, tokensIn, tokensOut int, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	entry := &Entry{
		Fingerprint:       fingerprint,
		CanonicalResponse: response,
		TokensIn:          tokensIn,
		TokensOut:         tokensOut,
		InsertedAt:        time.Now(),
		TTL:               ttl,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fingerprint]; ok {
		c.removeElement(el)
	}

	el := c.order.PushFront(entry)
	c.entries[fingerprint] = el
	c.bytes += entry.size()

	c.evictLocked()
}

// removeElement must be called with mu held.
func (c *Cache) removeElement(el *list.Element) {
	entry := el.Value.(*Entry)
	c.order.Remove(el)
	delete(c.entries, entry.Fingerprint)
	c.bytes -= entry.size()
}

// evictLocked drops expired entries and, if still over budget, the least
// recently used ones until the cache fits within MaxEntries and MaxBytes.
// Must be called with mu held.
func (c *Cache) evictLocked() {
	now := time.Now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*Entry).expired(now) {
			c.removeElement(el)
		}
		el = prev
	}

	for {
		overCount := c.opts.MaxEntries > 0 && c.order.Len() > c.opts.MaxEntries
		overBytes := c.opts.MaxBytes > 0 && c.bytes > c.opts.MaxBytes
		if !overCount && !overBytes {
			return
		}
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.removeElement(oldest)
	}
}

// Eligible reports whether a completed turn's parameters satisfy spec
// §4.F's cache-write conditions: a terminal finish reason, no tool calls in
// the response, and a temperature at or below the determinism threshold.
func Eligible(finishReason string, hadToolCalls bool, temperature *float64, determinismThreshold float64) bool {
	if finishReason != "stop" && finishReason != "length" {
		return false
	}
	if hadToolCalls {
		return false
	}
	if temperature != nil && *temperature > determinismThreshold {
		return false
	}
	return true
}

// DefaultDeterminismThreshold is the spec default (§4.F): temperature at or
// below this value is considered deterministic enough to cache.
const DefaultDeterminismThreshold = 0.2

// Coalesce runs fn at most once per fingerprint among concurrent callers;
// every caller racing the same fingerprint while fn is in flight receives
// the same (result, error) without re-invoking fn. This is the single-flight
// seam the Router calls before issuing an adapter request for a cacheable
// fingerprint.
func (c *Cache) Coalesce(fingerprint string, fn func() (any, error)) (any, error, bool) {
	v, err, shared := c.group.Do(fingerprint, fn)
	return v, err, shared
}
