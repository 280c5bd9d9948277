package memmon

import (
	"path"
	"strconv"
	"strings"
	"sync"
)

// fingerprintScratch is a per-goroutine scratch buffer for composing
// "<basename>:<line>" keys without allocating on the hot path.
var fingerprintScratch = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 128)
		return &b
	},
}

// Fingerprint derives the stat-bucket key for an allocation call site:
// "<basename>:<line>". Path components up to and including the last
// occurrence of any marker in roots are stripped first; since only the
// final path component is ever retained, two call sites that differ
// only in how a root-relative path was reached (e.g. a vendored copy
// under a thirdparty/ include path) collapse onto the same bucket.
//
// Open Question (spec.md §9) pinned: a file with no marker in roots is
// not an error — it still collapses to its bare basename. hadRoot
// reports whether a marker was actually found, for callers that want to
// flag unrecognized source roots without changing bucket identity.
func Fingerprint(file string, line int, roots []string) (fingerprint string, hadRoot bool) {
	stripped, hadRoot := stripToRoot(file, roots)
	base := path.Base(filepathToSlash(stripped))

	bufp, _ := fingerprintScratch.Get().(*[]byte)
	buf := (*bufp)[:0]

	buf = append(buf, base...)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, int64(line), 10)

	key := string(buf)

	*bufp = buf
	fingerprintScratch.Put(bufp)

	return key, hadRoot
}

// stripToRoot returns the file path after the last occurrence of
// whichever marker in roots matches latest, or file unchanged if none
// match.
func stripToRoot(file string, roots []string) (rest string, hadRoot bool) {
	best := -1

	for _, marker := range roots {
		if marker == "" {
			continue
		}

		if idx := strings.LastIndex(file, marker); idx >= 0 {
			end := idx + len(marker)
			if end > best {
				best = end
			}
		}
	}

	if best < 0 {
		return file, false
	}

	return file[best:], true
}

// filepathToSlash normalizes Windows-style separators so path.Base
// behaves the same regardless of the platform that recorded __FILE__.
func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
