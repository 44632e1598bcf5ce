package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nameFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeQuery lowercases, trims and collapses internal whitespace. Accents
// are folded away so "Pokémon" and "pokemon" hit the same cache key and
// synonym table entry.
func normalizeQuery(raw string) string {
	folded, _, err := transform.String(nameFolder, raw)
	if err != nil {
		folded = raw
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// normalizeName reduces a title to its dedupe identity: lowercased, accents
// folded, punctuation stripped, whitespace collapsed.
func normalizeName(raw string) string {
	folded, _, err := transform.String(nameFolder, raw)
	if err != nil {
		folded = raw
	}
	var builder strings.Builder
	builder.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			builder.WriteRune(r)
		case unicode.IsSpace(r):
			builder.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(builder.String()), " ")
}

var romanNumerals = map[string]int{
	"i": 1, "ii": 2, "iii": 3, "iv": 4, "v": 5,
	"vi": 6, "vii": 7, "viii": 8, "ix": 9, "x": 10,
}

// sequelNumber parses a trailing sequel token: an arabic number 1..10 or a
// roman numeral I..X. Returns 0 when the token is not a sequel marker.
func sequelNumber(token string) int {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return 0
	}
	if value, ok := romanNumerals[token]; ok {
		return value
	}
	if len(token) <= 2 {
		numeric := 0
		for _, r := range token {
			if r < '0' || r > '9' {
				return 0
			}
			numeric = numeric*10 + int(r-'0')
		}
		if numeric >= 1 && numeric <= 10 {
			return numeric
		}
	}
	return 0
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
