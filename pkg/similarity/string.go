// Package similarity holds the pairwise comparison functions used by listing
// matching. Every function returns a score in [0.0, 1.0].
package similarity

import (
	"strings"
)

// String returns the edit-distance similarity of a and b after case folding.
// Whitespace is compared as-is.
func String(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ra, rb := []rune(a), []rune(b)
	distance := levenshtein(ra, rb)
	maxLen := max(len(ra), len(rb))

	return max(0.0, 1.0-float64(distance)/float64(maxLen))
}

// LevenshteinDistance returns the number of single-character insertions,
// deletions or substitutions needed to turn a into b.
func LevenshteinDistance(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Create two rows for dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min(
				prevRow[j]+1,      // deletion
				row[j-1]+1,        // insertion
				prevRow[j-1]+cost, // substitution
			)
		}
		prevRow, row = row, prevRow
	}

	return prevRow[len(b)]
}
