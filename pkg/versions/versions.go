package versions

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

type Interface interface {
	// Len is the number of elements in the collection.
	Len() int

	// Less reports whether the element with index i must sort before the element with index j.
	// If both Less(i, j) and Less(j, i) are false, then the elements at index i and j are considered equal.
	Less(i, j int) bool

	// Swap swaps the elements with indexes i and j.
	Swap(i, j int)
}

// ByLatest sorts versions so that the latest release ends up last. Package
// identifiers carry the build number in the prerelease position
// ("1.2.0-0", "1.2.0-py_1"), so equal releases are ordered by build number,
// compared numerically rather than lexically.
type ByLatest []*version.Version

func (u ByLatest) Len() int {
	return len(u)
}

func (u ByLatest) Swap(i, j int) {
	u[i], u[j] = u[j], u[i]
}

func (u ByLatest) Less(i, j int) bool {
	if equal(u[i].Segments(), u[j].Segments()) {
		if u[j].Metadata() != "" && u[j].Metadata() > u[i].Metadata() {
			return true
		}
		if bi, bj, ok := buildNumbers(u[i], u[j]); ok {
			return bi < bj
		}
	}
	return u[i].LessThan(u[j])
}

// buildNumbers extracts the numeric build number from both versions'
// prerelease parts. The second return is false when either part has no
// trailing number, in which case callers should fall back to the default
// comparison.
func buildNumbers(vi, vj *version.Version) (int64, int64, bool) {
	bi, oki := buildNumber(vi.Prerelease())
	bj, okj := buildNumber(vj.Prerelease())
	if !oki || !okj {
		return 0, 0, false
	}
	return bi, bj, true
}

// buildNumber parses a build string such as "0", "12" or "py0" (the
// underscore in "py_0" is removed by NewVersion) down to its numeric part.
func buildNumber(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	i := 0
	for i < len(s) && (s[i] < '0' || s[i] > '9') {
		i++
	}
	if i == len(s) {
		return 0, false
	}
	n, err := strconv.ParseInt(s[i:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}

// NewVersion parses a package version. Upstreams sometimes separate
// pre-release tags with an underscore ("5.2_rc4"), which go-version cannot
// digest, so underscores are removed first.
func NewVersion(v string) (*version.Version, error) {
	v = strings.ReplaceAll(v, "_", "")
	return version.NewVersion(v)
}

// ByLatestStrings is like ByLatest but lets the user pass in strings instead of Version objects.
type ByLatestStrings []string

func (by ByLatestStrings) Len() int {
	return len(by)
}

func (by ByLatestStrings) Less(i, j int) bool {
	vi, err := NewVersion(by[i])
	if err != nil {
		return false
	}
	vj, err := NewVersion(by[j])
	if err != nil {
		return false
	}
	if equal(vi.Segments(), vj.Segments()) {
		if vj.Metadata() != "" && vj.Metadata() > vi.Metadata() {
			return true
		}
		if bi, bj, ok := buildNumbers(vi, vj); ok {
			return bi < bj
		}
	}
	return vi.LessThan(vj)
}

func (by ByLatestStrings) Swap(i, j int) {
	by[i], by[j] = by[j], by[i]
}

// Latest returns the highest version among the given version strings, or an
// empty string if none of them parse.
func Latest(vs []string) string {
	var parsed []*version.Version
	for _, s := range vs {
		v, err := NewVersion(s)
		if err != nil {
			continue
		}
		parsed = append(parsed, v)
	}
	if len(parsed) == 0 {
		return ""
	}
	latest := parsed[0]
	for _, v := range parsed[1:] {
		if ByLatest([]*version.Version{latest, v}).Less(0, 1) {
			latest = v
		}
	}
	return latest.Original()
}
