// Package address provides pure string canonicalization and similarity
// scoring for free-text street addresses. Nothing here does I/O; the
// resolver composes these helpers with store and provider lookups.
package address

import (
	"regexp"
	"strings"
)

var (
	unitRe    = regexp.MustCompile(`(?i)(?:\b(?:apt|apartment|unit|ste|suite)\b\.?|#)\s*[a-z0-9\-]+`)
	countryRe = regexp.MustCompile(`\b(united\s*states|u\.s\.a\.|u\.s\.|usa|us)\b`)
	ordinalRe = regexp.MustCompile(`\b(\d+)(st|nd|rd|th)\b`)
	punctRe   = regexp.MustCompile(`[\s.,#-]+`)
)

// wordOrdinals covers spelled-out ordinals common in street names (1..20).
var wordOrdinals = map[string]string{
	"first": "1", "second": "2", "third": "3", "fourth": "4", "fifth": "5",
	"sixth": "6", "seventh": "7", "eighth": "8", "ninth": "9", "tenth": "10",
	"eleventh": "11", "twelfth": "12", "thirteenth": "13", "fourteenth": "14",
	"fifteenth": "15", "sixteenth": "16", "seventeenth": "17",
	"eighteenth": "18", "nineteenth": "19", "twentieth": "20",
}

// suffixExpansions maps abbreviated street suffixes to their full words.
var suffixExpansions = map[string]string{
	"ave": "avenue", "av": "avenue",
	"blvd": "boulevard",
	"st":   "street",
	"rd":   "road",
	"dr":   "drive",
	"ln":   "lane",
	"ct":   "court",
	"ter":  "terrace",
	"hwy":  "highway",
	"pkwy": "parkway",
	"pl":   "place",
}

// neutralTokens are removed before similarity scoring: full street-suffix
// words and country artifacts inflate length without adding address signal.
// Ordered so longer tokens are stripped before their substrings.
var neutralTokens = []string{
	"unitedstates",
	"boulevard", "terrace", "highway", "parkway",
	"avenue", "street", "states", "drive", "court", "place",
	"road", "lane",
}

var wordRe = regexp.MustCompile(`\b[a-z0-9]+\b`)

// Normalize canonicalizes an address into a compact alphanumeric key for
// exact-equality comparison: lowercase, unit markers and country tokens
// removed, ordinals flattened, street abbreviations expanded, and all
// whitespace and punctuation stripped. Idempotent.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = countryRe.ReplaceAllString(s, "")
	s = unitRe.ReplaceAllString(s, "")
	s = ordinalRe.ReplaceAllString(s, "$1")

	s = wordRe.ReplaceAllStringFunc(s, func(tok string) string {
		if n, ok := wordOrdinals[tok]; ok {
			return n
		}
		if full, ok := suffixExpansions[tok]; ok {
			return full
		}
		return tok
	})

	return punctRe.ReplaceAllString(s, "")
}

// StripUnit removes unit markers ("Apt 4B", "Suite 300", "#12") from s,
// leaving the building-level address.
func StripUnit(s string) string {
	return strings.TrimSpace(unitRe.ReplaceAllString(s, ""))
}

// NormalizeForSimilarity applies Normalize and then strips neutral tokens.
// Used only for scoring, never for exact-match lookups: removing suffix
// words would make "5th Street" and "5th Avenue" collide.
func NormalizeForSimilarity(s string) string {
	s = Normalize(s)
	for _, tok := range neutralTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return s
}

// directionalWords maps spelled-out directionals to the single letters used
// in stored listing addresses.
var directionalWords = map[string]string{
	"north": "n", "south": "s", "east": "e", "west": "w",
}

var directionalRe = regexp.MustCompile(`\b(north|south|east|west)\b`)

// NormalizeExact is the listing-upsert comparison form: Normalize plus
// directional words collapsed to single letters, so "Dexter Ave North" and
// "Dexter Ave N" match the same row.
func NormalizeExact(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = directionalRe.ReplaceAllStringFunc(s, func(w string) string {
		return directionalWords[w]
	})
	return Normalize(s)
}
