package memmon

import (
	"testing"
	"unsafe"
)

func TestWriteReadHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, headerSize+64)
	base := unsafe.Pointer(&buf[0])

	userPtr := writeHeader(base, StatID(7), 64)

	stat, size := readHeader(userPtr)
	if stat != 7 {
		t.Fatalf("stat = %d, want 7", stat)
	}

	if size != 64 {
		t.Fatalf("size = %d, want 64", size)
	}

	h, ok := headerAt(userPtr)
	if !ok {
		t.Fatal("expected header magic to validate")
	}

	if h.statID != 7 || h.recordedSize != 64 {
		t.Fatalf("unexpected raw header: %+v", h)
	}

	if got := baseOf(userPtr); got != base {
		t.Fatalf("baseOf(userPtr) = %v, want %v", got, base)
	}
}

func TestHeaderAtRejectsForeignMemory(t *testing.T) {
	buf := make([]byte, headerSize+16)
	// Deliberately never write a header; buf's leading bytes are zero.
	userPtr := unsafe.Add(unsafe.Pointer(&buf[0]), headerSize)

	if _, ok := headerAt(userPtr); ok {
		t.Fatal("expected headerAt to reject a block with no stamped magic")
	}
}
