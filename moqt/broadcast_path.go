package moqt

import (
	"strings"
)

// BroadcastPath identifies a broadcast. Paths are opaque strings; slashes are
// conventional separators (e.g. "live/cam1") but carry no meaning of their own.
// The empty path is valid.
type BroadcastPath string

func (bp BroadcastPath) String() string {
	return string(bp)
}

// HasPrefix reports whether the path starts with prefix. Matching is on raw
// bytes: "live/" matches "live/cam1" and "live/a/b", and "live" also matches
// "lively".
func (bp BroadcastPath) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(bp), prefix)
}

// GetSuffix returns the path with prefix removed, or false if the path does
// not start with prefix.
func (bp BroadcastPath) GetSuffix(prefix string) (string, bool) {
	return strings.CutPrefix(string(bp), prefix)
}

// Join appends suffix to prefix.
func Join(prefix string, suffix string) BroadcastPath {
	return BroadcastPath(prefix + suffix)
}
