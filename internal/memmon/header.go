package memmon

import "unsafe"

// writeHeader stamps a tracking header into the first headerSize bytes
// of base and returns the user pointer, which is base advanced past the
// header. base must be at least headerSize+N bytes long, matching the
// layout decision in spec.md §4.1: the interceptor requests
// size+sizeof(AllocationHeader) from the platform allocator and hands
// back header+sizeof(AllocationHeader).
func writeHeader(base unsafe.Pointer, stat StatID, recordedSize uint64) unsafe.Pointer {
	h := (*rawHeader)(base)
	h.magic = headerMagic
	h.statID = uint32(stat)
	h.recordedSize = recordedSize

	return unsafe.Add(base, headerSize)
}

// readHeader reads the tracking header preceding a user pointer without
// validating it; callers must check ok via headerAt first.
func readHeader(userPtr unsafe.Pointer) (stat StatID, recordedSize uint64) {
	h := (*rawHeader)(baseOf(userPtr))

	return StatID(h.statID), h.recordedSize
}

// headerAt returns the header preceding userPtr and whether its magic
// validates, i.e. whether userPtr was produced by writeHeader.
func headerAt(userPtr unsafe.Pointer) (h *rawHeader, ok bool) {
	h = (*rawHeader)(baseOf(userPtr))

	return h, h.magic == headerMagic
}

// baseOf recovers the platform allocator's base pointer from a user
// pointer returned by writeHeader.
func baseOf(userPtr unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(userPtr, -headerSize)
}

// rawHeader is the in-memory layout of AllocationHeader. Field order is
// significant: it must match headerSize (16 bytes) with no implicit
// padding on any platform Go supports.
type rawHeader struct {
	magic        uint32
	statID       uint32
	recordedSize uint64
}
