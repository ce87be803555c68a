// Package scoring computes the weighted confidence score for one incoming
// listing against one stored candidate.
package scoring

import (
	"math"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/similarity"
)

// Weights is the per-field weight table. Weights must sum to 1.
type Weights struct {
	Make     float64
	Model    float64
	Year     float64
	Mileage  float64
	Price    float64
	Location float64
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.Make + w.Model + w.Year + w.Mileage + w.Price + w.Location
}

// Config contains the weights and tolerances of the calculator
type Config struct {
	Weights                Weights
	YearToleranceYears     int     // default: 1
	PriceTolerance         float64 // default: 500
	MileageTolerance       float64 // default: 500
	LocationToleranceMiles float64 // default: 10
	MileageBothMissing     float64 // similarity when neither side has mileage (default: 0.5)
	MileageOneMissing      float64 // similarity when only one side has mileage (default: 0.2)
}

// DefaultConfig returns the stock single-item scoring configuration
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Make:     0.15,
			Model:    0.20,
			Year:     0.15,
			Mileage:  0.15,
			Price:    0.20,
			Location: 0.15,
		},
		YearToleranceYears:     similarity.DefaultYearTolerance,
		PriceTolerance:         500,
		MileageTolerance:       500,
		LocationToleranceMiles: 10,
		MileageBothMissing:     0.5,
		MileageOneMissing:      0.2,
	}
}

const weightEpsilon = 1e-6

// Validate checks that the configuration can produce scores in [0,100]
func (c Config) Validate() error {
	if math.Abs(c.Weights.Sum()-1.0) > weightEpsilon {
		return clovererrors.NewInvalidArgumentf("weights", "must sum to 1, got %.4f", c.Weights.Sum())
	}
	for name, w := range map[string]float64{
		"weights.make": c.Weights.Make, "weights.model": c.Weights.Model, "weights.year": c.Weights.Year,
		"weights.mileage": c.Weights.Mileage, "weights.price": c.Weights.Price, "weights.location": c.Weights.Location,
	} {
		if w < 0 {
			return clovererrors.NewInvalidArgument(name, "must not be negative")
		}
	}
	if c.YearToleranceYears <= 0 {
		return clovererrors.NewInvalidArgument("yearToleranceYears", "must be greater than 0")
	}
	if c.PriceTolerance <= 0 {
		return clovererrors.NewInvalidArgument("priceTolerance", "must be greater than 0")
	}
	if c.MileageTolerance <= 0 {
		return clovererrors.NewInvalidArgument("mileageTolerance", "must be greater than 0")
	}
	if c.LocationToleranceMiles <= 0 {
		return clovererrors.NewInvalidArgument("locationToleranceMiles", "must be greater than 0")
	}
	return nil
}

// Result is a composite score and its per-field breakdown. Field scores are
// on the same 0..100 scale as Score.
type Result struct {
	Score       float64
	FieldScores map[string]float64
}

// Calculator scores listing pairs with a fixed weight table
type Calculator struct {
	config Config
}

// NewCalculator creates a calculator after validating config
func NewCalculator(config Config) (*Calculator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{config: config}, nil
}

// Config returns the calculator configuration
func (c *Calculator) Config() Config {
	return c.config
}

// Score compares incoming against candidate and returns a composite in [0,100]
// rounded to two decimals.
func (c *Calculator) Score(incoming *models.ScrapedListing, candidate *models.CandidateListing) (*Result, error) {
	if incoming == nil {
		return nil, clovererrors.NewInvalidArgument("incoming", "must not be nil")
	}
	if candidate == nil {
		return nil, clovererrors.NewInvalidArgument("candidate", "must not be nil")
	}

	makeScore := similarity.String(incoming.Make, candidate.Make)
	modelScore := similarity.String(incoming.Model, candidate.Model)

	yearScore := 0.0
	if incoming.Year != nil {
		s, err := similarity.Year(*incoming.Year, candidate.Year, c.config.YearToleranceYears)
		if err != nil {
			return nil, err
		}
		yearScore = s
	}

	priceScore, err := similarity.Numeric(incoming.Price, candidate.Price, c.config.PriceTolerance)
	if err != nil {
		return nil, err
	}

	mileageScore, err := c.mileage(incoming.Mileage, candidate.Mileage)
	if err != nil {
		return nil, err
	}

	locationScore, err := similarity.Geo(
		similarity.NewPoint(incoming.Latitude, incoming.Longitude),
		similarity.NewPoint(candidate.Latitude, candidate.Longitude),
		c.config.LocationToleranceMiles,
	)
	if err != nil {
		return nil, err
	}

	w := c.config.Weights
	total := makeScore*w.Make +
		modelScore*w.Model +
		yearScore*w.Year +
		mileageScore*w.Mileage +
		priceScore*w.Price +
		locationScore*w.Location

	return &Result{
		Score: clamp(round2(total * 100)),
		FieldScores: map[string]float64{
			models.FieldMake:     round2(makeScore * 100),
			models.FieldModel:    round2(modelScore * 100),
			models.FieldYear:     round2(yearScore * 100),
			models.FieldMileage:  round2(mileageScore * 100),
			models.FieldPrice:    round2(priceScore * 100),
			models.FieldLocation: round2(locationScore * 100),
		},
	}, nil
}

func (c *Calculator) mileage(a, b *int) (float64, error) {
	switch {
	case a == nil && b == nil:
		return c.config.MileageBothMissing, nil
	case a == nil || b == nil:
		return c.config.MileageOneMissing, nil
	}
	return similarity.Numeric(float64(*a), float64(*b), c.config.MileageTolerance)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
