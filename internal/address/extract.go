package address

import (
	"regexp"
	"strings"
)

var (
	zipRe       = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	houseRe     = regexp.MustCompile(`^\s*(\d+)\b`)
	dirLetterRe = regexp.MustCompile(`\b([NnEeSsWw])\b`)
	dirWordRe   = regexp.MustCompile(`(?i)\b(north|south|east|west)\b`)
	leadNumRe   = regexp.MustCompile(`^\s*\d+\s+`)
	routeRe     = regexp.MustCompile(`^([A-Za-z0-9]+)\s+([A-Za-z.]+)\b`)
)

// ExtractZip returns the 5-digit ZIP code in s, ignoring any +4 part, or ""
// if none is present.
func ExtractZip(s string) string {
	m := zipRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractHouseNumber returns the leading house number of s, or "".
func ExtractHouseNumber(s string) string {
	m := houseRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractDirection returns the N/S/E/W directional in s, preferring a
// standalone letter over a spelled-out word, or "".
func ExtractDirection(s string) string {
	if m := dirLetterRe.FindStringSubmatch(s); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := dirWordRe.FindStringSubmatch(s); m != nil {
		return strings.ToUpper(m[1][:1])
	}
	return ""
}

// canonicalSuffixes maps street-suffix spellings to a canonical short form
// for route-key comparison.
var canonicalSuffixes = map[string]string{
	"avenue": "ave", "ave": "ave", "av": "ave",
	"street": "st", "st": "st",
	"boulevard": "blvd", "blvd": "blvd",
	"road": "rd", "rd": "rd",
	"drive": "dr", "dr": "dr",
	"lane": "ln", "ln": "ln",
	"court": "ct", "ct": "ct",
	"terrace": "ter", "ter": "ter",
	"highway": "hwy", "hwy": "hwy",
	"parkway": "pkwy", "pkwy": "pkwy",
	"place": "pl", "pl": "pl",
}

// canonicalSuffix shortens a street suffix, passing unknown words through.
func canonicalSuffix(s string) string {
	s = strings.ToLower(strings.TrimRight(s, "."))
	if short, ok := canonicalSuffixes[s]; ok {
		return short
	}
	return s
}

// normalizeOrdinalToken flattens "9th" or "third" to a bare number for
// route-key comparison; other tokens pass through lowercased.
func normalizeOrdinalToken(tok string) string {
	t := strings.ToLower(tok)
	if m := ordinalRe.FindStringSubmatch(t); m != nil && m[0] == t {
		return m[1]
	}
	if n, ok := wordOrdinals[t]; ok {
		return n
	}
	return t
}

// ExtractRouteKey returns a compact "<name> <suffix>" key like "13 ave" or
// "james st", or "" when no route pattern is found. Used as a hard-reject
// filter: two addresses on provably different routes never match.
func ExtractRouteKey(s string) string {
	str := leadNumRe.ReplaceAllString(strings.TrimSpace(s), "")
	m := routeRe.FindStringSubmatch(str)
	if m == nil {
		return ""
	}
	return normalizeOrdinalToken(m[1]) + " " + canonicalSuffix(m[2])
}

// HardConflict reports whether two addresses disagree on any structural
// component present on both sides: ZIP, house number, directional, or route
// key. Such pairs are rejected before any similarity scoring.
func HardConflict(a, b string) bool {
	if za, zb := ExtractZip(a), ExtractZip(b); za != "" && zb != "" && za != zb {
		return true
	}
	if ha, hb := ExtractHouseNumber(a), ExtractHouseNumber(b); ha != "" && hb != "" && ha != hb {
		return true
	}
	if da, db := ExtractDirection(a), ExtractDirection(b); da != "" && db != "" && da != db {
		return true
	}
	if ra, rb := ExtractRouteKey(a), ExtractRouteKey(b); ra != "" && rb != "" && ra != rb {
		return true
	}
	return false
}
