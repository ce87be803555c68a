package dedup

import (
	"math"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Weights is the batch weight table. It is deliberately separate from the
// single-item table in package scoring; the two produce different scores.
type Weights struct {
	MakeModel float64
	Year      float64
	Mileage   float64
	Price     float64
	Location  float64
}

// DefaultWeights returns the stock batch weight table
func DefaultWeights() Weights {
	return Weights{
		MakeModel: 0.30,
		Year:      0.20,
		Mileage:   0.15,
		Price:     0.15,
		Location:  0.20,
	}
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.MakeModel + w.Year + w.Mileage + w.Price + w.Location
}

func (w Weights) validate() error {
	if math.Abs(w.Sum()-1.0) > 1e-6 {
		return clovererrors.NewInvalidArgumentf("weights", "must sum to 1, got %.4f", w.Sum())
	}
	if w.MakeModel < 0 || w.Year < 0 || w.Mileage < 0 || w.Price < 0 || w.Location < 0 {
		return clovererrors.NewInvalidArgument("weights", "must not be negative")
	}
	return nil
}

// batchScorer computes the batch composite on a 0..100 scale. Every field
// score is already 0..100, so the weighted sum needs no rescaling.
type batchScorer struct {
	weights          Weights
	mileageTolerance float64
	priceTolerance   float64
}

func newBatchScorer(weights Weights, opts models.DuplicateDetectionOptions) *batchScorer {
	return &batchScorer{
		weights:          weights,
		mileageTolerance: opts.MileageTolerance,
		priceTolerance:   opts.PriceTolerance,
	}
}

func (s *batchScorer) score(listing *models.ScrapedListing, candidate *models.CandidateListing) (float64, map[string]float64) {
	fields := map[string]float64{
		models.FieldMakeModel: makeModelScore(listing, candidate),
		models.FieldYear:      yearScore(listing.Year, candidate.Year),
		models.FieldMileage:   mileageScore(listing.Mileage, candidate.Mileage, s.mileageTolerance),
		models.FieldPrice:     linearDecay(listing.Price, candidate.Price, s.priceTolerance),
		models.FieldLocation:  cityScore(listing.City, candidate.City),
	}

	total := fields[models.FieldMakeModel]*s.weights.MakeModel +
		fields[models.FieldYear]*s.weights.Year +
		fields[models.FieldMileage]*s.weights.Mileage +
		fields[models.FieldPrice]*s.weights.Price +
		fields[models.FieldLocation]*s.weights.Location

	return math.Round(total*100) / 100, fields
}

func makeModelScore(listing *models.ScrapedListing, candidate *models.CandidateListing) float64 {
	if normalizers.NormalizeMake(listing.Make) == normalizers.NormalizeMake(candidate.Make) &&
		normalizers.NormalizeModel(listing.Model) == normalizers.NormalizeModel(candidate.Model) {
		return 100
	}
	return 0
}

func yearScore(year *int, candidateYear int) float64 {
	if year == nil {
		return 0
	}
	diff := *year - candidateYear
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return 100
	case 1:
		return 75
	case 2:
		return 50
	default:
		return 0
	}
}

func mileageScore(a, b *int, tolerance float64) float64 {
	switch {
	case a == nil && b == nil:
		return 50
	case a == nil || b == nil:
		return 0
	}
	return linearDecay(float64(*a), float64(*b), tolerance)
}

// linearDecay falls from 100 at equality to 0 at a gap of tolerance.
func linearDecay(a, b, tolerance float64) float64 {
	return 100 * math.Max(0, 1-math.Abs(a-b)/tolerance)
}

func cityScore(a, b *string) float64 {
	ca, cb := cityValue(a), cityValue(b)
	switch {
	case ca == "" && cb == "":
		return 50
	case ca == "" || cb == "":
		return 0
	case ca == cb:
		return 100
	default:
		return 0
	}
}

func cityValue(c *string) string {
	if c == nil {
		return ""
	}
	return normalizers.NormalizeCity(*c)
}
