package memmon

import (
	"sync"
	"sync/atomic"
)

// counterTable holds one StatEntry per registered StatID plus the
// process-wide totals. entries is guarded by mu the same way the
// teacher's ConcurrentMap guards each shard (RLock on every Get/Len,
// Lock on every mutating Set): resolve's sync.Map fast path lets a
// reader land on add/sub for a StatID without ever acquiring the
// registry mutex that append runs under, so entries itself still needs
// its own lock to make the slice header read/write race-free. Once
// appended, entries are never removed or reordered, so a StatID always
// indexes the same *StatEntry for the life of the process (spec.md I5).
type counterTable struct {
	mu      sync.RWMutex
	entries []*StatEntry

	totalCurrent  atomic.Uint64
	totalPeak     atomic.Uint64
	totalMetaInfo atomic.Uint64
}

func newCounterTable() *counterTable {
	return &counterTable{}
}

// append adds a new StatEntry and returns its StatID. Safe to call
// concurrently, though in practice the registry's own mutex already
// serializes callers (see registry.go).
func (c *counterTable) append(fingerprint string) StatID {
	entry := &StatEntry{Fingerprint: fingerprint}

	c.mu.Lock()
	c.entries = append(c.entries, entry)
	id := StatID(len(c.entries) - 1)
	c.mu.Unlock()

	return id
}

// at returns the StatEntry for stat. Safe to call from any goroutine,
// including the hot allocate/free path that never touches the registry
// mutex.
func (c *counterTable) at(stat StatID) *StatEntry {
	c.mu.RLock()
	entry := c.entries[stat]
	c.mu.RUnlock()

	return entry
}

// len returns the number of registered stats.
func (c *counterTable) len() int {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()

	return n
}

// add records size bytes as newly live under stat, updates stat's peak
// via a compare-and-swap loop (spec.md §4.3's peak update protocol),
// and folds the same delta into the process totals. O(1), lock-free,
// callable from any goroutine.
func (c *counterTable) add(stat StatID, size uint64) {
	entry := c.at(stat)

	newCur := entry.Current.Add(size)
	entry.AllocCount.Add(1)
	casMax(&entry.Peak, newCur)

	newTotal := c.totalCurrent.Add(size)
	casMax(&c.totalPeak, newTotal)
}

// sub removes size bytes of live accounting from stat. It never touches
// peak: per spec.md §4.3, peak is monotonically non-decreasing and only
// add observes new highs. underflowed reports whether size exceeded the
// entry's current balance, clamping it to zero instead of wrapping;
// spec.md §7 treats this as a bug to diagnose, not to propagate.
func (c *counterTable) sub(stat StatID, size uint64) (underflowed bool) {
	entry := c.at(stat)

	underflowed = subUint64(&entry.Current, size)
	subUint64(&c.totalCurrent, size)

	return underflowed
}

// addMetaInfo folds n bytes of bookkeeping overhead into the
// process-wide total (spec.md §4.5's total_metainfo).
func (c *counterTable) addMetaInfo(n uint64) {
	c.totalMetaInfo.Add(n)
}

// subMetaInfo removes n bytes of bookkeeping overhead, mirroring sub's
// clamp-at-zero behavior via the same subUint64 idiom rather than a raw
// two's-complement Add.
func (c *counterTable) subMetaInfo(n uint64) {
	subUint64(&c.totalMetaInfo, n)
}

// casMax performs the portable peak-via-CAS pattern: read peak, read
// the value just observed, and retry the compare-and-swap until either
// it succeeds or another goroutine has already pushed peak at least as
// high. A brief race where a concurrent add's new value transiently
// exceeds the still-stale peak is expected and harmless — every add
// re-checks, so peak eventually reflects the true high-water mark.
func casMax(peak *atomic.Uint64, observed uint64) {
	for {
		p := peak.Load()
		if observed <= p {
			return
		}

		if peak.CompareAndSwap(p, observed) {
			return
		}
	}
}

// subUint64 decrements an atomic.Uint64 by delta without underflowing
// past zero on the happy path; underflow indicates a bug in the
// interceptor's header handling (spec.md §4.3) and is reported by the
// caller, not here, since counters.go has no diagnostic sink.
func subUint64(v *atomic.Uint64, delta uint64) (underflowed bool) {
	for {
		cur := v.Load()

		var next uint64
		if delta > cur {
			next = 0
			underflowed = true
		} else {
			next = cur - delta
		}

		if v.CompareAndSwap(cur, next) {
			return underflowed
		}
	}
}
