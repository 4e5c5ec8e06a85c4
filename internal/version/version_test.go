package version

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebianCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2.2.49-2", "2.2.49-4", -1},
		{"2.2.49-4", "2.2.49-2", 1},
		{"1.0", "1.0", 0},
		{"1:0.9", "2.0", 1},     // epoch wins
		{"1.0~rc1", "1.0", -1},  // tilde sorts before release
		{"1.0-1", "1.0-1+b1", -1},
		{"10.0", "9.0", 1},      // numeric, not lexical
	}

	for _, tt := range tests {
		got := Debian{}.Compare(tt.a, tt.b)
		if sign(got) != tt.want {
			t.Errorf("Debian.Compare(%q, %q) = %d, want sign %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSemverCompare(t *testing.T) {
	assert.Negative(t, Semver{}.Compare("1.2.3", "1.10.0"))
	assert.Positive(t, Semver{}.Compare("2.0.0", "2.0.0-rc.1"))
	assert.Zero(t, Semver{}.Compare("v1.0.0", "1.0.0"))
	// Unparseable sorts first.
	assert.Negative(t, Semver{}.Compare("not-a-version", "0.0.1"))
}

func TestLatest(t *testing.T) {
	latest, ok := Latest(Debian{}, []string{"2.2.49-2", "2.2.49-4"})
	require.True(t, ok)
	assert.Equal(t, "2.2.49-4", latest)

	_, ok = Latest(Debian{}, nil)
	assert.False(t, ok)
}

func TestLatestFollowsComparator(t *testing.T) {
	vs := []string{"a", "b", "c"}

	latest, _ := Latest(reverse{}, vs)
	assert.Equal(t, "a", latest, "a reversed order must change the result")

	latest, _ = Latest(lexical{}, vs)
	assert.Equal(t, "c", latest)
}

func TestLatestTieBreak(t *testing.T) {
	// Every pair compares equal: the lexicographically greater string wins
	// regardless of input order.
	for _, vs := range [][]string{
		{"1.0", "1.00", "01.0"},
		{"01.0", "1.00", "1.0"},
		{"1.00", "01.0", "1.0"},
	} {
		latest, ok := Latest(allEqual{}, vs)
		require.True(t, ok)
		assert.Equal(t, "1.00", latest, "input %v", vs)
	}
}

func TestSort(t *testing.T) {
	vs := []string{"2.2.49-4", "1:1.0", "2.2.49-2", "2.2.49~rc1"}
	Sort(Debian{}, vs)
	assert.Equal(t, []string{"2.2.49~rc1", "2.2.49-2", "2.2.49-4", "1:1.0"}, vs)

	tied := []string{"b", "c", "a"}
	Sort(allEqual{}, tied)
	assert.True(t, slices.IsSorted(tied))
}

func TestForScheme(t *testing.T) {
	c, err := ForScheme("")
	require.NoError(t, err)
	assert.IsType(t, Debian{}, c)

	c, err = ForScheme("semver")
	require.NoError(t, err)
	assert.IsType(t, Semver{}, c)

	_, err = ForScheme("calver")
	assert.Error(t, err)
}

type allEqual struct{}

func (allEqual) Compare(string, string) int { return 0 }

type lexical struct{}

func (lexical) Compare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type reverse struct{}

func (reverse) Compare(a, b string) int { return lexical{}.Compare(b, a) }

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
