package memmon

import (
	"sync"
	"testing"
	"unsafe"
)

// TestScenarioSingleThreadSameBucketCollapse is end-to-end scenario 1.
func TestScenarioSingleThreadSameBucketCollapse(t *testing.T) {
	resetState(t, WithEnabled(true))

	p1 := Allocate(32, "/home/build/src/add_test.c", 100)
	p2 := Allocate(20, "/home/build/thirdparty/src/add_test.c", 100)

	if p1 == nil || p2 == nil {
		t.Fatal("allocation failed")
	}

	rpt := AggregateServerInfo()

	if rpt.NumStats != 1 {
		t.Fatalf("NumStats = %d, want 1", rpt.NumStats)
	}

	if len(rpt.Stats) != 1 {
		t.Fatalf("len(Stats) = %d, want 1", len(rpt.Stats))
	}

	stat := rpt.Stats[0]
	if stat.Fingerprint != "add_test.c:100" {
		t.Fatalf("fingerprint = %q, want add_test.c:100", stat.Fingerprint)
	}

	wantCurrent := uint64(GetAllocatedSize(p1)) + uint64(GetAllocatedSize(p2))
	if stat.Current != wantCurrent {
		t.Fatalf("current = %d, want %d", stat.Current, wantCurrent)
	}

	if rpt.TotalMetaInfo != 2*headerSize {
		t.Fatalf("TotalMetaInfo = %d, want %d", rpt.TotalMetaInfo, 2*headerSize)
	}

	// Scenario 3: paired sub returns to zero, peak survives.
	peakBefore := wantCurrent

	Free(p1)
	Free(p2)

	rpt2 := AggregateServerInfo()
	if len(rpt2.Stats) != 0 {
		t.Fatalf("expected zero-current entry to be filtered, got %+v", rpt2.Stats)
	}

	if rpt2.TotalCurrent != 0 {
		t.Fatalf("TotalCurrent = %d, want 0", rpt2.TotalCurrent)
	}

	if rpt2.TotalMetaInfo != 0 {
		t.Fatalf("TotalMetaInfo = %d, want 0", rpt2.TotalMetaInfo)
	}

	if rpt2.TotalPeak < peakBefore {
		t.Fatalf("TotalPeak = %d, want at least %d", rpt2.TotalPeak, peakBefore)
	}
}

// TestScenarioConcurrentAdditionsToOneBucket is end-to-end scenario 2.
func TestScenarioConcurrentAdditionsToOneBucket(t *testing.T) {
	resetState(t, WithEnabled(true))

	const n = 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		want uint64
	)

	for i := 1; i <= n; i++ {
		size := uintptr(i * 10)

		wg.Add(1)

		go func(size uintptr) {
			defer wg.Done()

			p := Allocate(size, "base/add_test_multithread.c", 100)
			if p == nil {
				t.Errorf("allocation of %d bytes failed", size)
				return
			}

			mu.Lock()
			want += uint64(GetAllocatedSize(p))
			mu.Unlock()
		}(size)
	}

	wg.Wait()

	rpt := AggregateServerInfo()
	if len(rpt.Stats) != 1 {
		t.Fatalf("len(Stats) = %d, want 1", len(rpt.Stats))
	}

	stat := rpt.Stats[0]
	if stat.Fingerprint != "add_test_multithread.c:100" {
		t.Fatalf("fingerprint = %q, want add_test_multithread.c:100", stat.Fingerprint)
	}

	if stat.Current != want {
		t.Fatalf("current = %d, want %d", stat.Current, want)
	}
}

// TestScenarioMixedTrackedUntrackedFrees is end-to-end scenario 4.
func TestScenarioMixedTrackedUntrackedFrees(t *testing.T) {
	resetState(t, WithEnabled(true))

	before := AggregateServerInfo()

	ptr := bareAlloc(10)
	if ptr == nil {
		t.Fatal("bare allocation failed")
	}

	Free(ptr) // must not mutate any counters

	after := AggregateServerInfo()

	if after.TotalCurrent != before.TotalCurrent {
		t.Fatalf("TotalCurrent changed from %d to %d on untracked free", before.TotalCurrent, after.TotalCurrent)
	}

	if len(after.Stats) != len(before.Stats) {
		t.Fatalf("stat count changed from %d to %d on untracked free", len(before.Stats), len(after.Stats))
	}
}

// TestScenarioReallocatePreservesAccounting is end-to-end scenario 5.
func TestScenarioReallocatePreservesAccounting(t *testing.T) {
	resetState(t, WithEnabled(true))

	p := Allocate(100, "realloc.c", 1)
	if p == nil {
		t.Fatal("initial allocation failed")
	}

	oldRecorded := uint64(GetAllocatedSize(p))

	q := Reallocate(p, 200, "realloc.c", 1)
	if q == nil {
		t.Fatal("reallocate failed")
	}

	newRecorded := uint64(GetAllocatedSize(q))

	rpt := AggregateServerInfo()
	if len(rpt.Stats) != 1 {
		t.Fatalf("len(Stats) = %d, want 1", len(rpt.Stats))
	}

	stat := rpt.Stats[0]
	if stat.Current != newRecorded {
		t.Fatalf("current = %d, want %d (old %d should be fully subtracted)", stat.Current, newRecorded, oldRecorded)
	}

	if stat.Peak < newRecorded {
		t.Fatalf("peak = %d, want at least %d", stat.Peak, newRecorded)
	}

	Free(q)
}

// TestReallocateNilActsAsAllocate and TestReallocateZeroActsAsFree pin
// down spec.md §4.1's platform-realloc edge cases.
func TestReallocateNilActsAsAllocate(t *testing.T) {
	resetState(t, WithEnabled(true))

	p := Reallocate(nil, 64, "realloc_edge.c", 1)
	if p == nil {
		t.Fatal("Reallocate(nil, ...) should behave as Allocate")
	}

	Free(p)
}

func TestReallocateZeroActsAsFree(t *testing.T) {
	resetState(t, WithEnabled(true))

	p := Allocate(64, "realloc_edge.c", 2)
	if p == nil {
		t.Fatal("allocation failed")
	}

	q := Reallocate(p, 0, "realloc_edge.c", 2)
	if q != nil {
		t.Fatalf("Reallocate(p, 0, ...) should return nil, got %v", q)
	}

	rpt := AggregateServerInfo()
	if rpt.TotalCurrent != 0 {
		t.Fatalf("TotalCurrent = %d, want 0 after zero-size reallocate", rpt.TotalCurrent)
	}
}

// TestScenarioDisabledTransparency is end-to-end scenario 6: without
// Initialize, allocation and free still work and no counters exist.
func TestScenarioDisabledTransparency(t *testing.T) {
	Finalize() // ensure no singleton from a prior test leaks in
	t.Cleanup(Finalize)

	if IsEnabled() {
		t.Fatal("expected IsEnabled() == false with no singleton")
	}

	p1 := Allocate(32, "/home/build/src/add_test.c", 100)
	p2 := Allocate(20, "/home/build/thirdparty/src/add_test.c", 100)

	if p1 == nil || p2 == nil {
		t.Fatal("disabled-mode allocation should still succeed")
	}

	rpt := AggregateServerInfo()
	if rpt.TotalCurrent != 0 {
		t.Fatalf("TotalCurrent = %d, want 0 while disabled", rpt.TotalCurrent)
	}

	if rpt.NumStats != 0 {
		t.Fatalf("NumStats = %d, want 0 while disabled", rpt.NumStats)
	}

	// Both pointers remain valid for use and for a subsequent free.
	data := unsafe.Slice((*byte)(p1), 32)
	for i := range data {
		data[i] = byte(i)
	}

	Free(p1)
	Free(p2)
}

// TestGetAllocatedSizeRoundTrip is P6.
func TestGetAllocatedSizeRoundTrip(t *testing.T) {
	resetState(t, WithEnabled(true))

	p := Allocate(37, "roundtrip.c", 5)
	if p == nil {
		t.Fatal("allocation failed")
	}

	got := GetAllocatedSize(p)
	if got < 37 {
		t.Fatalf("GetAllocatedSize = %d, want >= 37", got)
	}

	Free(p)
}

func TestGetAllocatedSizeNil(t *testing.T) {
	if got := GetAllocatedSize(nil); got != 0 {
		t.Fatalf("GetAllocatedSize(nil) = %d, want 0", got)
	}
}

// TestAllocateZeroBytesPassesThrough is spec.md §4.1's zero-byte edge
// case: the outcome is platform-defined but honored, and accounting
// proceeds with the reported usable size if non-nil.
func TestAllocateZeroBytesPassesThrough(t *testing.T) {
	resetState(t, WithEnabled(true))

	p := Allocate(0, "zero.c", 1)
	if p != nil {
		t.Fatal("Go's bare allocator returns nil for a zero-byte request; expected nil here too")
	}
}

// TestPairedAllocFreeQuiescence is P1 across many threads and
// fingerprints drawn from a finite set.
func TestPairedAllocFreeQuiescence(t *testing.T) {
	resetState(t, WithEnabled(true))

	sites := []string{"a.c", "b.c", "c.c"}

	const n = 300

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		site := sites[i%len(sites)]
		size := uintptr(8 + i%64)

		wg.Add(1)

		go func(site string, size uintptr) {
			defer wg.Done()

			p := Allocate(size, site, 1)
			if p == nil {
				t.Errorf("allocation failed for %s", site)
				return
			}

			Free(p)
		}(site, size)
	}

	wg.Wait()

	rpt := AggregateServerInfo()
	if rpt.TotalCurrent != 0 {
		t.Fatalf("TotalCurrent = %d, want 0 at quiescence", rpt.TotalCurrent)
	}

	if len(rpt.Stats) != 0 {
		t.Fatalf("expected all buckets to have filtered out at zero current, got %+v", rpt.Stats)
	}
}

func TestDuplicateString(t *testing.T) {
	resetState(t, WithEnabled(true))

	s := "hello, memmon"

	p := DuplicateString(s, "dup.c", 1)
	if p == nil {
		t.Fatal("DuplicateString failed")
	}

	got := unsafe.String((*byte)(p), len(s))
	if got != s {
		t.Fatalf("duplicated string = %q, want %q", got, s)
	}

	Free(p)
}

func TestAddSubStatDirectAttribution(t *testing.T) {
	state := resetState(t, WithEnabled(true))

	stat := state.AddStat("external.c:1", 1024)
	if stat == NoStat {
		t.Fatal("AddStat returned NoStat while enabled")
	}

	rpt := AggregateServerInfo()
	if len(rpt.Stats) != 1 || rpt.Stats[0].Current != 1024 {
		t.Fatalf("unexpected report after AddStat: %+v", rpt.Stats)
	}

	state.SubStat(stat, 1024)

	rpt = AggregateServerInfo()
	if len(rpt.Stats) != 0 {
		t.Fatalf("expected zero-current bucket filtered, got %+v", rpt.Stats)
	}
}

func TestAddStatWhileDisabledIsNoop(t *testing.T) {
	Finalize()
	t.Cleanup(Finalize)

	state := Current()
	if state.AddStat("x.c:1", 10) != NoStat {
		t.Fatal("AddStat on a nil ProcessState should return NoStat")
	}
}
