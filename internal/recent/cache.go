// Package recent keeps a bounded newest-first buffer of change events per
// language for synchronous "show me recent changes" queries. It is a cache,
// not a source of truth: contents are lost on restart by design.
package recent

import (
	"sync"

	"wikistream/pkg/wikistream"
)

const (
	// DefaultCapacity bounds each per-language buffer.
	DefaultCapacity = 20
	// DefaultQuerySize is returned when callers do not request a count.
	DefaultQuerySize = 5
)

// Option mutates cache configuration.
type Option func(*Cache)

// WithCapacity sets the per-language buffer capacity.
func WithCapacity(capacity int) Option {
	return func(cache *Cache) {
		if capacity > 0 {
			cache.capacity = capacity
		}
	}
}

// Cache holds one bounded ring of recent events per language.
//
// Buffers are created lazily on the first recorded event and live for the
// process lifetime unless Clear is called during global cleanup.
type Cache struct {
	capacity int

	mu      sync.RWMutex
	buffers map[wikistream.LanguageKey]*ring
}

// New creates an empty cache.
func New(options ...Option) *Cache {
	cache := &Cache{
		capacity: DefaultCapacity,
		buffers:  make(map[wikistream.LanguageKey]*ring),
	}
	for _, option := range options {
		option(cache)
	}

	return cache
}

// Record appends an event at the front of the language's buffer, evicting the
// oldest entry once capacity is exceeded.
func (c *Cache) Record(lang wikistream.LanguageKey, event wikistream.ChangeEvent) {
	if lang == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buffer, exists := c.buffers[lang]
	if !exists {
		buffer = newRing(c.capacity)
		c.buffers[lang] = buffer
	}
	buffer.pushFront(event)
}

// Query returns up to count events for the language, newest first.
//
// A non-positive count falls back to DefaultQuerySize. Unknown languages
// yield an empty slice, never an error.
func (c *Cache) Query(lang wikistream.LanguageKey, count int) []wikistream.ChangeEvent {
	if count <= 0 {
		count = DefaultQuerySize
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	buffer, exists := c.buffers[lang]
	if !exists {
		return []wikistream.ChangeEvent{}
	}

	return buffer.newest(count)
}

// Clear drops every buffer. Used by global cleanup; recording after Clear
// starts from empty state.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.buffers = make(map[wikistream.LanguageKey]*ring)
	c.mu.Unlock()
}

// ring is a fixed-capacity newest-first event sequence.
type ring struct {
	capacity int
	events   []wikistream.ChangeEvent
	head     int
	size     int
}

func newRing(capacity int) *ring {
	return &ring{
		capacity: capacity,
		events:   make([]wikistream.ChangeEvent, capacity),
	}
}

// pushFront stores the event as the newest entry, overwriting the oldest when
// the ring is full.
func (r *ring) pushFront(event wikistream.ChangeEvent) {
	r.head = (r.head - 1 + r.capacity) % r.capacity
	r.events[r.head] = event
	if r.size < r.capacity {
		r.size++
	}
}

// newest copies out up to count entries, newest first.
func (r *ring) newest(count int) []wikistream.ChangeEvent {
	if count > r.size {
		count = r.size
	}

	out := make([]wikistream.ChangeEvent, 0, count)
	for idx := 0; idx < count; idx++ {
		out = append(out, r.events[(r.head+idx)%r.capacity])
	}

	return out
}
