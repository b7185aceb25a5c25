// Package tags converts between free-text tag input and canonical tag sets.
//
// Tags are case-sensitive: "Go" and "go" are different tags.
package tags

import "strings"

// Parse splits text on whitespace, drops empty tokens and keeps the
// first-seen order. It never lowercases and never deduplicates, so
// Parse(Concatenate(t)) == t for any t whose tags contain no whitespace.
func Parse(text string) []string {
	fields := strings.Fields(text)
	if fields == nil {
		return []string{}
	}
	return fields
}

// Concatenate joins tags with a single space.
func Concatenate(tags []string) string {
	return strings.Join(tags, " ")
}

// Unique drops exact duplicates, keeping the first occurrence.
func Unique(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ContainsAll reports whether have carries every tag in want.
// An empty want matches everything.
func ContainsAll(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
