// Package cache implements the bounded result cache (C5): a map from
// (method,params) fingerprint to a completed success envelope, with TTL,
// idle-TTL, capacity eviction, and an O(1) invalidate-all for chain-tip
// driven invalidation.
//
// The eviction and LRU bookkeeping below follow the same container/list
// plus map shape as a generic DNS TTL cache; two things are added that a
// plain TTL cache doesn't need: a separately tracked idle deadline distinct
// from the insert-time deadline, and an atomic epoch counter so
// InvalidateAll never has to walk the map.
package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key is a 64-bit fingerprint of (method, params).
type Key uint64

// Fingerprint derives the cache key for a method call. encoding/json sorts
// object keys when marshaling a map, so the result is independent of the
// order in which params object members were decoded; array order within
// params is preserved as-is, which is the ordering the spec requires.
func Fingerprint(method string, params []interface{}) Key {
	b, _ := json.Marshal(struct {
		Method string        `json:"method"`
		Params []interface{} `json:"params"`
	}{method, params})
	return Key(xxhash.Sum64(b))
}

type entry struct {
	value     json.RawMessage
	cachedAt  time.Time
	lastRead  time.Time
	epoch     uint64
	elem      *list.Element
}

// Cache is a thread-safe, capacity-bounded cache of success responses.
// Negative caching (errors) is never performed by this type; callers must
// not insert error results.
type Cache struct {
	mu sync.Mutex

	ttl        time.Duration
	idleTTL    time.Duration
	maxEntries int

	epoch uint64 // bumped by InvalidateAll; entries stamped below this are stale
	lru   *list.List
	data  map[Key]*entry

	hits, misses int64
}

// New returns a Cache with the given TTL, idle-TTL, and entry cap. A
// maxEntries of 0 or less is treated as 1.
func New(ttl, idleTTL time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		ttl:        ttl,
		idleTTL:    idleTTL,
		maxEntries: maxEntries,
		lru:        list.New(),
		data:       make(map[Key]*entry),
	}
}

// Get returns the cached value for key, if present, unexpired, and not
// invalidated since insertion. A hit refreshes both LRU position and the
// idle deadline.
func (c *Cache) Get(key Key) (json.RawMessage, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.data[key]
	if e == nil {
		c.misses++
		return nil, false
	}
	if e.epoch < c.epoch || now.Sub(e.cachedAt) > c.ttl || now.Sub(e.lastRead) > c.idleTTL {
		c.lru.Remove(e.elem)
		delete(c.data, key)
		c.misses++
		return nil, false
	}

	e.lastRead = now
	c.lru.MoveToBack(e.elem)
	c.hits++
	return e.value, true
}

// Insert stores value under key, replacing any existing entry. value must
// be a success result; the coordinator never calls this for errors.
func (c *Cache) Insert(key Key, value json.RawMessage) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.data[key]; existing != nil {
		existing.value = value
		existing.cachedAt = now
		existing.lastRead = now
		existing.epoch = c.epoch
		c.lru.MoveToBack(existing.elem)
		return
	}

	e := &entry{value: value, cachedAt: now, lastRead: now, epoch: c.epoch}
	e.elem = c.lru.PushBack(key)
	c.data[key] = e

	c.evictOldest()
}

// InvalidateAll atomically invalidates every entry currently in the cache.
// Readers racing with this call observe either the pre- or post-invalidation
// state — never a partial view — because it is a single counter bump under
// the cache's own lock rather than a map walk.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
}

func (c *Cache) evictOldest() {
	for len(c.data) > c.maxEntries {
		front := c.lru.Front()
		if front == nil {
			break
		}
		k := front.Value.(Key)
		c.lru.Remove(front)
		delete(c.data, k)
	}
}

// Stats reports hit/miss counters, mainly for /status-style diagnostics.
type Stats struct {
	Hits, Misses int64
	Entries      int
}

// Stats returns a point-in-time snapshot.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.data)}
}
