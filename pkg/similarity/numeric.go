package similarity

import (
	"math"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

// DefaultYearTolerance is the year gap still treated as a near match.
const DefaultYearTolerance = 1

// Numeric returns 1.0 when |a-b| is within tolerance and tolerance/|a-b|
// beyond it, so a gap of twice the tolerance scores 0.5.
func Numeric(a, b, tolerance float64) (float64, error) {
	if tolerance <= 0 || math.IsNaN(tolerance) {
		return 0, clovererrors.NewInvalidArgumentf("tolerance", "must be greater than 0, got %v", tolerance)
	}

	diff := math.Abs(a - b)
	if diff <= tolerance {
		return 1.0, nil
	}

	return min(1.0, tolerance/diff), nil
}

// Year scores model years on a fixed curve: identical years 1.0, a gap within
// toleranceYears 0.8, and 0.9 - 0.1 per year beyond that, floored at 0.
func Year(a, b, toleranceYears int) (float64, error) {
	if toleranceYears <= 0 {
		return 0, clovererrors.NewInvalidArgumentf("toleranceYears", "must be greater than 0, got %d", toleranceYears)
	}

	diff := a - b
	if diff < 0 {
		diff = -diff
	}

	switch {
	case diff == 0:
		return 1.0, nil
	case diff <= toleranceYears:
		return 0.8, nil
	default:
		// integer tenths keep 0.7, 0.6, ... exact
		return max(0.0, float64(9-diff)/10), nil
	}
}
