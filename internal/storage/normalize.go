package storage

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// searchNormalizer decomposes to NFD, strips combining marks and
// recomposes, so "café" and "cafe" compare equal.
var searchNormalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeSearchText lowercases s and strips diacritics. Both the stored
// search column and incoming search needles go through this, making
// substring search case- and diacritic-insensitive.
func NormalizeSearchText(s string) string {
	out, _, err := transform.String(searchNormalizer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
