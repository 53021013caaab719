package stringhelpers

import (
	"regexp"
	"strings"
)

// RegexpSplit splits a string into an array using the regexSep as a separator
func RegexpSplit(text, regexSeperator string) []string {
	reg := regexp.MustCompile(regexSeperator)
	indexes := reg.FindAllStringIndex(text, -1)
	lastIdx := 0
	result := make([]string, len(indexes)+1)
	for i, element := range indexes {
		result[i] = text[lastIdx:element[0]]
		lastIdx = element[1]
	}
	result[len(indexes)] = text[lastIdx:]
	return result
}

// Dedupe returns the input slice with duplicates removed, keeping the first
// occurrence of each value and the original ordering.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// HostOf returns the host portion of a URL-ish string without requiring a
// scheme, e.g. "pypi.io/packages/source/c/casq" -> "pypi.io".
func HostOf(s string) string {
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	host, _, _ := strings.Cut(s, "/")
	return host
}
