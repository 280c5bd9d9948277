//go:build linux
// +build linux

package memmon

import "golang.org/x/sys/unix"

// systemMemory reports the process's peak resident set size in bytes
// (ru_maxrss, the high-water mark rather than the current RSS), the
// Go analogue of the teacher's platform-specific zero-copy file
// helpers that reach for golang.org/x/sys/unix on Linux and fall back
// to the runtime package elsewhere (zerocopy_unix_file.go /
// zerocopy_darwin_file.go / zerocopy_windows_file.go). It populates
// Report.SystemMemory, an ambient figure the operator can compare
// against TotalPeak to see how much of the process's peak RSS the
// accounting subsystem actually explains.
func systemMemory() uint64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}

	// ru_maxrss is in kilobytes on Linux.
	if ru.Maxrss < 0 {
		return 0
	}

	return uint64(ru.Maxrss) * 1024
}
