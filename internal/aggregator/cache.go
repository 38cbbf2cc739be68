// Package aggregator groups identical errors by traceback so repeated
// failures can be summarised instead of read one by one.
package aggregator

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"towerbot/internal/record"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = time.Hour
)

// Entry is one distinct error.
type Entry struct {
	Count     int
	First     time.Time
	Last      time.Time
	Traceback string
	Message   string
	Level     record.Level
}

// Summary is the reporting view of an Entry.
type Summary struct {
	Count            int    `json:"count"`
	FirstTime        string `json:"first_time"`
	LastTime         string `json:"last_time"`
	Message          string `json:"message"`
	Level            string `json:"level"`
	TracebackPreview string `json:"traceback_preview"`
}

// Cache is a bounded, TTL-purged map of errors keyed by the SHA-256 of their
// traceback. Expiry happens on insert only.
type Cache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCache(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{capacity: capacity, ttl: ttl, now: time.Now, entries: map[string]*Entry{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key returns the cache key of a traceback.
func Key(traceback string) string {
	sum := sha256.Sum256([]byte(traceback))
	return hex.EncodeToString(sum[:])
}

// Record folds r into the cache. Records without an exception are ignored.
func (c *Cache) Record(r record.Record) {
	if r.Exception == nil {
		return
	}
	tb := r.Exception.Traceback()
	key := Key(tb)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	for k, e := range c.entries {
		if now.Sub(e.Last) > c.ttl {
			delete(c.entries, k)
		}
	}

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.Last = now
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = &Entry{
		Count:     1,
		First:     now,
		Last:      now,
		Traceback: tb,
		Message:   r.Message,
		Level:     r.Level,
	}
}

// evictOldest removes the entry with the smallest Last. c.mu must be held.
func (c *Cache) evictOldest() {
	var (
		oldest string
		at     time.Time
	)
	for k, e := range c.entries {
		if oldest == "" || e.Last.Before(at) {
			oldest, at = k, e.Last
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Get returns a copy of the entry stored under key.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Summary lists all entries, most frequent first.
func (c *Cache) Summary() []Summary {
	c.mu.Lock()
	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, *e)
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Last.After(entries[j].Last)
	})
	out := make([]Summary, len(entries))
	for i, e := range entries {
		out[i] = Summary{
			Count:            e.Count,
			FirstTime:        e.First.Format(time.RFC3339Nano),
			LastTime:         e.Last.Format(time.RFC3339Nano),
			Message:          e.Message,
			Level:            e.Level.String(),
			TracebackPreview: lastLine(e.Traceback),
		}
	}
	return out
}

func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = map[string]*Entry{}
	c.mu.Unlock()
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
