// Package textfold normalizes human-authored names for matching. Sheet text
// arrives with inconsistent casing and accents, so comparisons fold both.
package textfold

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Key returns the folded form of a name: trimmed, lowercased, diacritics
// removed.
func Key(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// Equal reports whether two names match after folding.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}
