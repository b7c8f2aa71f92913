package ota

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Version is the monotonically increasing number of an installed bundle.
// NoVersion means that no bundle is installed or it was rolled back.
type Version int64

const NoVersion Version = 0

func (v Version) String() string {
	return strconv.FormatInt(int64(v), 10)
}

// ParseVersion converts a stored version to a number.
// The empty string is NoVersion. ok is false for text that is not an integral number,
// callers skip the version gate in that case.
func ParseVersion(s string) (v Version, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoVersion, true
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Version(i), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return NoVersion, false
	}
	return Version(f), true
}

// storedNumber reads a stored version for the version gate.
// Fractional and out of range values still compare, only NaN and text that is not a number report false.
func storedNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return float64(NoVersion), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, !math.IsNaN(f)
}

// Ptr returns a pointer to v, for passing declared versions inline.
func (v Version) Ptr() *Version {
	return &v
}
