// Package mempool implements the per-payload pipeline: normalization of
// raw provider payloads, duplicate suppression, calldata decoding,
// enrichment and filtering.
package mempool

import (
	"sort"
	"sync"
	"time"
)

// Deduplicator is a time-windowed seen-set of transaction hashes. Each
// subscription owns exactly one; the same transaction arriving from a
// second endpoint inside the window is suppressed.
//
// Pruning is amortized over ShouldProcess calls rather than running on
// a timer, so staleness is bounded but a burst can grow the set up to
// the hard cap. At the cap the oldest entries are evicted, shrinking
// the effective window instead of growing memory.
type Deduplicator struct {
	ttl        time.Duration
	maxEntries int

	mu   sync.Mutex
	seen map[string]time.Time

	// now is replaceable in tests
	now func() time.Time
}

// NewDeduplicator creates a deduplicator with the given suppression
// window and entry cap.
func NewDeduplicator(ttl time.Duration, maxEntries int) *Deduplicator {
	return &Deduplicator{
		ttl:        ttl,
		maxEntries: maxEntries,
		seen:       make(map[string]time.Time),
		now:        time.Now,
	}
}

// ShouldProcess reports whether the hash is new within the window,
// recording it if so. A false return means the hash was already seen
// and the caller should count a drop.
func (d *Deduplicator) ShouldProcess(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	if last, ok := d.seen[hash]; ok && now.Sub(last) < d.ttl {
		return false
	}

	d.seen[hash] = now
	d.prune(now)
	return true
}

// prune removes expired entries and enforces the hard cap.
// Called with mu held.
func (d *Deduplicator) prune(now time.Time) {
	cutoff := now.Add(-d.ttl)
	for hash, last := range d.seen {
		if last.Before(cutoff) {
			delete(d.seen, hash)
		}
	}

	if d.maxEntries <= 0 || len(d.seen) <= d.maxEntries {
		return
	}

	type entry struct {
		hash string
		last time.Time
	}
	entries := make([]entry, 0, len(d.seen))
	for hash, last := range d.seen {
		entries = append(entries, entry{hash, last})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].last.Before(entries[j].last)
	})
	for _, e := range entries[:len(entries)-d.maxEntries] {
		delete(d.seen, e.hash)
	}
}

// Len returns the current seen-set size.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Clear empties the seen-set.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]time.Time)
}
