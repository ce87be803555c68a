// Package blocking groups stored listings by (make, year) so each incoming
// listing is compared only with candidates in its make/year window.
package blocking

import (
	"sort"
	"strconv"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

const (
	// YearWindow is how many model years either side of a listing are searched.
	YearWindow = 2

	// Window used when an incoming listing has no year.
	unknownYearLookback  = 20
	unknownYearLookahead = 5
)

// Index maps "make:year" block keys to the candidates sharing that key.
// It is built once and read-only afterwards, so concurrent lookups need no locking.
type Index struct {
	blocks      map[string][]*models.CandidateListing
	total       int
	currentYear func() int
}

// Option configures an Index
type Option func(*Index)

// WithCurrentYear overrides the clock used for the unknown-year window.
func WithCurrentYear(fn func() int) Option {
	return func(i *Index) {
		i.currentYear = fn
	}
}

// NewIndex builds an index in a single pass over candidates.
func NewIndex(candidates []models.CandidateListing, opts ...Option) *Index {
	idx := &Index{
		blocks:      make(map[string][]*models.CandidateListing),
		currentYear: func() int { return time.Now().Year() },
	}
	for _, opt := range opts {
		opt(idx)
	}

	for i := range candidates {
		c := &candidates[i]
		key := Key(c.Make, c.Year)
		idx.blocks[key] = append(idx.blocks[key], c)
		idx.total++
	}

	return idx
}

// Key returns the block key for a make and year.
func Key(vehicleMake string, year int) string {
	return normalizers.NormalizeMake(vehicleMake) + ":" + strconv.Itoa(year)
}

// Lookup returns every candidate with the given make whose year is within
// YearWindow of year. A nil year searches the wide unknown-year window.
// An empty make returns nothing. Results contain each listing id once.
func (i *Index) Lookup(vehicleMake string, year *int) []*models.CandidateListing {
	if i == nil || normalizers.NormalizeMake(vehicleMake) == "" {
		return nil
	}

	var lo, hi int
	if year != nil {
		lo, hi = *year-YearWindow, *year+YearWindow
	} else {
		lo, hi = UnknownYearRange(i.currentYear())
	}

	var out []*models.CandidateListing
	seen := make(map[string]struct{})
	for y := lo; y <= hi; y++ {
		for _, c := range i.blocks[Key(vehicleMake, y)] {
			if _, ok := seen[c.ListingID]; ok {
				continue
			}
			seen[c.ListingID] = struct{}{}
			out = append(out, c)
		}
	}

	return out
}

// UnknownYearRange is the year span searched for a listing without a year.
func UnknownYearRange(currentYear int) (int, int) {
	return currentYear - unknownYearLookback, currentYear + unknownYearLookahead
}

// BlockCount returns the number of distinct (make, year) blocks.
func (i *Index) BlockCount() int {
	if i == nil {
		return 0
	}
	return len(i.blocks)
}

// TotalCandidates returns the number of candidates inserted.
func (i *Index) TotalCandidates() int {
	if i == nil {
		return 0
	}
	return i.total
}

// Keys returns the block keys in sorted order.
func (i *Index) Keys() []string {
	if i == nil {
		return nil
	}
	keys := make([]string, 0, len(i.blocks))
	for k := range i.blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
