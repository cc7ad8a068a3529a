package progress

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCode trims a skill code, applies NFKC and case-folds it so codes
// typed with full-width characters or mixed case compare equal.
func NormalizeCode(code string) string {
	s := norm.NFKC.String(strings.TrimSpace(code))
	// cases.Caser is stateful; never share one across goroutines.
	return cases.Fold().String(s)
}

// MatchNormalized reports whether either already-normalized code is a prefix
// of the other. Empty codes never match.
func MatchNormalized(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// MatchCode reports whether two codes from different taxonomies refer to the
// same skill, tolerating sub-skill suffixes ("EF06MA01" vs "EF06MA01H").
func MatchCode(a, b string) bool {
	return MatchNormalized(NormalizeCode(a), NormalizeCode(b))
}

// MatchAny reports whether code matches at least one entry of codes.
func MatchAny(code string, codes []string) bool {
	n := NormalizeCode(code)
	for _, c := range codes {
		if MatchNormalized(n, NormalizeCode(c)) {
			return true
		}
	}
	return false
}
