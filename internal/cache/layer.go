// Package cache memoizes list pages and items in two layers: an in-process
// map with TTL and insertion-order eviction, backed by the persistent store.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// maxPrunePerSet bounds the expired entries removed opportunistically on set.
const maxPrunePerSet = 8

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Layer is the in-process cache layer. Entries are ordered by insertion:
// reads never refresh an entry, re-setting a key moves it to newest, and the
// oldest entry is evicted at capacity.
type Layer[V any] struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, entry[V]]
	ttl      time.Duration
	capacity int
	now      func() time.Time

	fingerprint string
	hadFilters  bool
}

// NewLayer creates a layer. A non-positive ttl or capacity disables it.
func NewLayer[V any](ttl time.Duration, capacity int, now func() time.Time) *Layer[V] {
	if now == nil {
		now = time.Now
	}
	l := &Layer[V]{ttl: ttl, capacity: capacity, now: now}
	if l.Enabled() {
		// NewLRU only fails for a non-positive size.
		l.lru, _ = simplelru.NewLRU[string, entry[V]](capacity, nil)
	}
	return l
}

// Enabled reports whether the layer stores anything.
func (l *Layer[V]) Enabled() bool {
	return l.ttl > 0 && l.capacity > 0
}

// Get returns the value for key. Expired entries are deleted.
func (l *Layer[V]) Get(key string) (V, bool) {
	var zero V
	if !l.Enabled() {
		return zero, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.lru.Peek(key)
	if !ok {
		return zero, false
	}
	if l.expired(e) {
		l.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key as the newest entry.
func (l *Layer[V]) Set(key string, value V) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 0; i < maxPrunePerSet; i++ {
		_, oldest, ok := l.lru.GetOldest()
		if !ok || !l.expired(oldest) {
			break
		}
		l.lru.RemoveOldest()
	}
	l.lru.Remove(key)
	l.lru.Add(key, entry[V]{value: value, insertedAt: l.now()})
}

func (l *Layer[V]) expired(e entry[V]) bool {
	return l.now().Sub(e.insertedAt) > l.ttl
}

// Observe records the catalog fingerprint and filter state of a request and
// purges the layer when the fingerprint changed or the request moved from
// filtered to unfiltered. It returns the purge reason, or "".
func (l *Layer[V]) Observe(fingerprint string, filtered bool) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	reason := ""
	switch {
	case l.fingerprint != "" && l.fingerprint != fingerprint:
		reason = "fingerprint"
	case l.hadFilters && !filtered:
		reason = "filters_cleared"
	}
	l.fingerprint = fingerprint
	l.hadFilters = filtered
	if reason != "" && l.lru != nil {
		l.lru.Purge()
	}
	return reason
}

// CheckFingerprint purges the layer when fingerprint differs from the last
// one observed, leaving the filter state alone.
func (l *Layer[V]) CheckFingerprint(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fingerprint == fingerprint {
		return false
	}
	changed := l.fingerprint != ""
	l.fingerprint = fingerprint
	if changed && l.lru != nil {
		l.lru.Purge()
	}
	return changed
}

// Len returns the number of entries, expired ones included.
func (l *Layer[V]) Len() int {
	if l.lru == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Len()
}

// Keys returns the keys from oldest to newest.
func (l *Layer[V]) Keys() []string {
	if l.lru == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Keys()
}
