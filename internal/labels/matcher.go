// internal/labels/matcher.go
package labels

import "strings"

// Matches reports whether a and b refer to the same label under case-insensitive
// substring containment in either direction. The relation is symmetric but not
// transitive: "Date" matches both "Violation Date" and "Issued Date" while those
// two do not match each other.
//
// Containment is unanchored, so "date" also matches "update". An empty string on
// either side never matches.
func Matches(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// MatchesAny returns the index of the first candidate that matches label, or -1.
func MatchesAny(label string, candidates ...string) int {
	for i, c := range candidates {
		if Matches(label, c) {
			return i
		}
	}
	return -1
}
