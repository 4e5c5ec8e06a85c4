// Package version orders package version strings.
package version

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	debversion "pault.ag/go/debian/version"
)

// Comparator is a total order over version strings.
// Compare returns a negative number when a < b, zero when equal, positive when a > b.
type Comparator interface {
	Compare(a, b string) int
}

// Debian orders versions by Debian policy (epoch, upstream, revision).
type Debian struct{}

// Compare implements Comparator.
// Strings that fail to parse sort before parseable ones and among themselves lexically.
func (Debian) Compare(a, b string) int {
	va, errA := debversion.Parse(a)
	vb, errB := debversion.Parse(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return debversion.Compare(va, vb)
}

// Semver orders versions by semantic versioning precedence.
type Semver struct{}

// Compare implements Comparator.
func (Semver) Compare(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

// ForScheme returns the comparator for a configured scheme name.
func ForScheme(scheme string) (Comparator, error) {
	switch scheme {
	case "", "debian":
		return Debian{}, nil
	case "semver":
		return Semver{}, nil
	default:
		return nil, fmt.Errorf("unknown version scheme: %s", scheme)
	}
}

// Compare orders a and b under cmp, breaking ties between distinct strings
// lexically so the result is deterministic.
func Compare(cmp Comparator, a, b string) int {
	if c := cmp.Compare(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Latest returns the greatest version in vs. Comparator ties between distinct
// strings go to the lexicographically greater string.
// ok is false when vs is empty.
func Latest(cmp Comparator, vs []string) (latest string, ok bool) {
	for i, v := range vs {
		if i == 0 || Compare(cmp, v, latest) > 0 {
			latest = v
		}
	}
	return latest, len(vs) > 0
}

// Sort orders vs ascending in place using the same tie-break as Latest.
func Sort(cmp Comparator, vs []string) {
	slices.SortFunc(vs, func(a, b string) int { return Compare(cmp, a, b) })
}
