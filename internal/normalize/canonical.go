package normalize

import (
	"strings"
	"unicode"
)

// Canonicalize turns a source column name into its lookup form: trimmed,
// lowercased, each whitespace rune replaced by '_', and every rune that is
// not a letter, digit or '_' removed. Canonicalize(Canonicalize(s)) ==
// Canonicalize(s).
func Canonicalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalizeAll canonicalizes every name, preserving order.
func CanonicalizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Canonicalize(n)
	}
	return out
}
