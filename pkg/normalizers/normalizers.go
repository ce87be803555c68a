// Package normalizers provides field normalization for listing matching and blocking.
// The listing repository mirrors these foldings in SQL, so a change here needs a
// matching change to its column expressions and indexes.
package normalizers

import (
	"strings"
	"unicode"
)

// Collapse trims a value and collapses inner whitespace runs to one space
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeMake lowercases a manufacturer name and collapses inner whitespace,
// so " Land  Rover" and "land rover" share a block key.
func NormalizeMake(s string) string {
	return Collapse(strings.ToLower(s))
}

// NormalizeModel applies the same folding as NormalizeMake.
func NormalizeModel(s string) string {
	return Collapse(strings.ToLower(s))
}

// NormalizeVIN uppercases a VIN and drops whitespace and dashes that some
// marketplaces insert for readability.
func NormalizeVIN(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || r == '-' {
			continue
		}
		result.WriteRune(unicode.ToUpper(r))
	}
	return result.String()
}

// NormalizeCity lowercases a city name and collapses whitespace
func NormalizeCity(s string) string {
	return Collapse(strings.ToLower(s))
}
