// Package canon canonicalizes Korean company and keyword strings so that
// visually identical names group together regardless of their Unicode encoding.
package canon

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var invisible = strings.NewReplacer(
	" ", " ", // non-breaking space
	"​", "", // zero-width space
	"\ufeff", "", // byte order mark
)

// Key returns the canonical grouping form of s: NFKC-composed, invisible
// characters removed, whitespace runs collapsed to a single space, trimmed.
// Key is idempotent. The original string should be kept for display.
func Key(s string) string {
	s = norm.NFKC.String(s)
	s = invisible.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Equal reports whether two raw strings share a canonical form.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}
