// Package slug converts entity display names into the ASCII identifiers used
// in page paths, and provides the case/diacritic fold used for name matching.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// From converts an arbitrary Unicode string into a URL-safe ASCII slug:
// "Éowyn of Rohan" -> "eowyn-of-rohan".
func From(s string) string {
	folded := Normalize(s)
	var b strings.Builder
	b.Grow(len(folded))
	prevHyphen := true // suppress leading hyphens
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Normalize lowercases s and strips diacritic marks (é -> e). Two display
// names that normalize equally are considered the same name during reference
// resolution.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}
