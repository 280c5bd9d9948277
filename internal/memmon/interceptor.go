package memmon

import (
	"math"
	"unsafe"

	memerrors "github.com/cubrid-go/memmon/internal/memmon/errors"
)

// Allocate requests size bytes, returning a pointer usable for size
// writable bytes. When the subsystem is disabled, file and line are
// ignored and this behaves exactly like the bare platform allocator. A
// zero-byte request is passed through to the platform allocator and its
// outcome honored (spec.md §4.1's edge cases); an overflowing request
// returns nil without touching any counters.
func Allocate(size uintptr, file string, line int) unsafe.Pointer {
	state := current()
	if !state.Enabled() {
		return bareAlloc(size)
	}

	if size == 0 {
		return bareAlloc(0)
	}

	usable := usableSize(size)
	if uint64(usable) > math.MaxUint64-headerSize {
		return nil // would overflow size+header
	}

	total := usable + headerSize

	base, block := rawAlloc(total)
	if base == nil {
		return nil
	}

	fingerprint, _ := Fingerprint(file, line, state.SourceRootMarkers())
	stat := state.registry.resolve(fingerprint)

	userPtr := writeHeader(base, stat, uint64(usable))
	liveBlocks.store(base, block)

	if stat != NoStat {
		state.counters.add(stat, uint64(usable))
		state.counters.addMetaInfo(headerSize)
	} else {
		state.diagnose(memerrors.RegistryExhausted(fingerprint))
	}

	return userPtr
}

// Free releases ptr. nil is a no-op. Pointers produced by Allocate are
// recognized by their header magic and unwind their accounting before
// the underlying block is released; any other pointer is treated as
// untracked and released with no counter update (spec.md §4.1/§4.4).
func Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	h, ok := headerAt(ptr)
	if !ok {
		// No valid header: either a genuinely foreign pointer (release
		// is then a harmless no-op), or one of our own untracked
		// bareAlloc blocks, where the user pointer doubles as the base.
		// bareAlloc blocks are expected whenever monitoring is disabled,
		// so only diagnose this while the subsystem is supposed to be
		// tracking everything it hands out.
		if state := current(); state.Enabled() {
			state.diagnose(memerrors.UntrackedFree(uintptr(ptr)))
		}

		liveBlocks.release(ptr)

		return
	}

	base := baseOf(ptr)

	if state := current(); state != nil {
		stat := StatID(h.statID)
		if stat != NoStat {
			state.counters.sub(stat, h.recordedSize)
			state.counters.subMetaInfo(headerSize)
		}
	}

	liveBlocks.release(base)
}

// Reallocate follows platform realloc semantics: a nil ptr acts as
// Allocate; a zero newSize acts as Free and returns nil. Otherwise a
// fresh tracked block is allocated, min(oldRecordedSize, newSize) bytes
// are copied over, and the old block is freed — the old contribution is
// subtracted and the new one added exactly once (spec.md §4.1).
func Reallocate(ptr unsafe.Pointer, newSize uintptr, file string, line int) unsafe.Pointer {
	if ptr == nil {
		return Allocate(newSize, file, line)
	}

	if newSize == 0 {
		Free(ptr)
		return nil
	}

	h, tracked := headerAt(ptr)

	newPtr := Allocate(newSize, file, line)
	if newPtr == nil {
		return nil
	}

	var oldSize uint64
	if tracked {
		oldSize = h.recordedSize
	} else {
		oldSize = uint64(GetAllocatedSize(ptr)) // bare block length, or 0 if unknown, to avoid over-reading
	}

	copySize := oldSize
	if uint64(newSize) < copySize {
		copySize = uint64(newSize)
	}

	copyBytes(newPtr, ptr, uintptr(copySize))
	Free(ptr)

	return newPtr
}

// DuplicateString returns a newly allocated tracked copy of s,
// including its NUL terminator's worth of space so callers that expect
// C-string semantics have room for one (the Go string itself carries no
// terminator).
func DuplicateString(s string, file string, line int) unsafe.Pointer {
	ptr := Allocate(uintptr(len(s))+1, file, line)
	if ptr == nil {
		return nil
	}

	dst := unsafe.Slice((*byte)(ptr), len(s)+1)
	copy(dst, s)
	dst[len(s)] = 0

	return ptr
}

// GetAllocatedSize returns the recorded usable size for a tracked ptr,
// zero for nil, and the platform's notion of usable size (here, the
// requested length since Go does not expose one) for an untracked
// pointer from bareAlloc, and zero for a pointer this package did not
// allocate (spec.md §6's get_allocated_size).
func GetAllocatedSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil {
		return 0
	}

	h, ok := headerAt(ptr)
	if !ok {
		// A bareAlloc block is anchored in liveBlocks under its own
		// pointer, and its buffer is exactly the requested length.
		liveBlocks.mu.RLock()
		block, found := liveBlocks.live[uintptr(ptr)]
		liveBlocks.mu.RUnlock()

		if found {
			return uintptr(len(block.buf))
		}

		return 0
	}

	return uintptr(h.recordedSize)
}

// bareAlloc allocates size bytes with no tracking header at all, used
// whenever the subsystem is disabled or for untracked requests that
// must behave exactly like the bare platform allocator.
func bareAlloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	buf := make([]byte, size)
	block := &rawBlock{buf: buf}
	base := unsafe.Pointer(&buf[0])
	liveBlocks.store(base, block)

	return base
}

// copyBytes copies n bytes from src to dst using unsafe.Slice views,
// the same pattern the teacher allocator package's copyMemory helper
// uses.
func copyBytes(dst, src unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}

	dstSlice := unsafe.Slice((*byte)(dst), n)
	srcSlice := unsafe.Slice((*byte)(src), n)
	copy(dstSlice, srcSlice)
}
