package relay

import (
	"sync"
	"time"
)

// DedupCache remembers message ids with their first-seen time in unix
// milliseconds. Entries leave only through Sweep.
type DedupCache struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	items  map[string]int64
}

// NewDedupCache returns a cache whose Sweep drops entries older than window.
func NewDedupCache(window time.Duration) *DedupCache {
	if window <= 0 {
		window = time.Minute
	}
	return &DedupCache{window: window, now: time.Now, items: make(map[string]int64)}
}

// Seen reports whether id is present.
func (d *DedupCache) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.items[id]
	return ok
}

// Mark records id as seen now unless already present. It reports whether id
// was newly recorded.
func (d *DedupCache) Mark(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[id]; ok {
		return false
	}
	d.items[id] = d.now().UnixMilli()
	return true
}

// Sweep removes entries first seen more than the window ago and returns how
// many were removed.
func (d *DedupCache) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := d.now().Add(-d.window).UnixMilli()
	n := 0
	for id, ts := range d.items {
		if ts <= cutoff {
			delete(d.items, id)
			n++
		}
	}
	return n
}

// Len returns the number of remembered ids.
func (d *DedupCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
