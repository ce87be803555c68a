// Package matching resolves a single incoming listing against the stored
// listing population: exact VIN, partial VIN, external id, then weighted
// attribute scoring.
package matching

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/blocking"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ListingStore is the read-only listing lookup the service needs.
// Finders return (nil, nil) when nothing matches.
type ListingStore interface {
	// FindByVIN matches a full VIN case-insensitively.
	FindByVIN(ctx context.Context, tenantID, vin string) (*models.CandidateListing, error)
	// FindByVINSuffix matches the trailing characters of stored VINs that are at least as long as suffix.
	FindByVINSuffix(ctx context.Context, tenantID, suffix string) (*models.CandidateListing, error)
	FindByExternalID(ctx context.Context, tenantID, externalID, sourceSite string) (*models.CandidateListing, error)
	// FindFuzzyCandidates returns active listings with the same make and model in [minYear, maxYear].
	FindFuzzyCandidates(ctx context.Context, tenantID, vehicleMake, vehicleModel string, minYear, maxYear int) ([]models.CandidateListing, error)
}

// Config contains configuration for the matching service
type Config struct {
	MatchThreshold       float64 // Minimum fuzzy score to accept (default: 85)
	FullVINLength        int     // default: 17
	PartialVINLength     int     // Trailing VIN characters compared (default: 8)
	YearWindow           int     // Fuzzy candidates within ±YearWindow (default: 2)
	ExactVINConfidence   float64 // default: 100
	PartialVINConfidence float64 // default: 95
	ExternalIDConfidence float64 // default: 100
	MaxCandidates        int     // Cap for FindMatches (default: 100)
}

// DefaultConfig returns default matching configuration
func DefaultConfig() Config {
	return Config{
		MatchThreshold:       85,
		FullVINLength:        17,
		PartialVINLength:     8,
		YearWindow:           2,
		ExactVINConfidence:   100,
		PartialVINConfidence: 95,
		ExternalIDConfidence: 100,
		MaxCandidates:        100,
	}
}

// Service implements single-listing identity resolution.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	logger     ectologger.Logger
	store      ListingStore
	calculator *scoring.Calculator
	config     Config
	now        func() time.Time
}

// NewService creates a new matching service
func NewService(logger ectologger.Logger, store ListingStore, calculator *scoring.Calculator, config Config) *Service {
	return &Service{
		logger:     logger,
		store:      store,
		calculator: calculator,
		config:     config,
		now:        time.Now,
	}
}

// FindBestMatch runs the resolution pipeline and returns at the first decisive
// stage. The explicit no-match outcome has method none and confidence 0.
// Store failures are returned unchanged.
func (s *Service) FindBestMatch(ctx context.Context, listing *models.ScrapedListing) (*models.FuzzyMatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.FindBestMatch")
	defer span.End()

	if listing == nil {
		return nil, clovererrors.NewInvalidArgument("listing", "must not be nil")
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   listing.TenantID,
		"external_id": listing.ExternalID,
		"source_site": listing.SourceSite,
	})

	result, err := s.matchIdentity(ctx, listing)
	if err != nil {
		log.WithError(err).Error("Failed to match listing identity")
		return nil, err
	}
	if result.IsMatch() {
		log.WithFields(map[string]any{"method": result.Method, "matched_listing_id": *result.MatchedListingID}).Debug("Matched listing by identity")
		metrics.RecordSingleMatch(string(result.Method))
		return result, nil
	}

	ranked, err := s.rankFuzzy(ctx, listing)
	if err != nil {
		log.WithError(err).Error("Failed to score fuzzy candidates")
		return nil, err
	}
	if len(ranked) == 0 {
		log.Debug("No match found")
		metrics.RecordSingleMatch(string(models.MatchMethodNone))
		return models.NoMatch(), nil
	}

	best := ranked[0]
	log.WithFields(map[string]any{"confidence": best.Confidence, "matched_listing_id": *best.MatchedListingID}).Debug("Matched listing by attributes")
	metrics.RecordSingleMatch(string(best.Method))
	return best, nil
}

// FindMatches returns every fuzzy candidate at or above the match threshold,
// highest confidence first, capped at MaxCandidates. Identity stages are not run.
func (s *Service) FindMatches(ctx context.Context, listing *models.ScrapedListing) ([]*models.FuzzyMatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.FindMatches")
	defer span.End()

	if listing == nil {
		return nil, clovererrors.NewInvalidArgument("listing", "must not be nil")
	}

	ranked, err := s.rankFuzzy(ctx, listing)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   listing.TenantID,
			"external_id": listing.ExternalID,
		}).Error("Failed to score fuzzy candidates")
		return nil, err
	}

	if s.config.MaxCandidates > 0 && len(ranked) > s.config.MaxCandidates {
		ranked = ranked[:s.config.MaxCandidates]
	}
	return ranked, nil
}

// matchIdentity runs the VIN and external id stages. It returns nil when
// none of them is decisive.
func (s *Service) matchIdentity(ctx context.Context, listing *models.ScrapedListing) (*models.FuzzyMatchResult, error) {
	vin := normalizers.NormalizeVIN(listing.VINValue())

	if len(vin) == s.config.FullVINLength {
		candidate, err := s.store.FindByVIN(ctx, listing.TenantID, vin)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			return models.MatchedWith(candidate, models.MatchMethodExactVIN, s.config.ExactVINConfidence), nil
		}
	}

	if len(vin) >= s.config.PartialVINLength {
		suffix := vin[len(vin)-s.config.PartialVINLength:]
		candidate, err := s.store.FindByVINSuffix(ctx, listing.TenantID, suffix)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			return models.MatchedWith(candidate, models.MatchMethodPartialVIN, s.config.PartialVINConfidence), nil
		}
	}

	if listing.ExternalID != "" && listing.SourceSite != "" {
		candidate, err := s.store.FindByExternalID(ctx, listing.TenantID, listing.ExternalID, listing.SourceSite)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			return models.MatchedWith(candidate, models.MatchMethodExternalID, s.config.ExternalIDConfidence), nil
		}
	}

	return nil, nil
}

// rankFuzzy scores every same make/model candidate in the year window and
// returns those at or above the match threshold, best first.
func (s *Service) rankFuzzy(ctx context.Context, listing *models.ScrapedListing) ([]*models.FuzzyMatchResult, error) {
	if !listing.HasMakeAndModel() {
		return nil, nil
	}

	minYear, maxYear := s.yearRange(listing.Year)
	candidates, err := s.store.FindFuzzyCandidates(ctx, listing.TenantID, listing.Make, listing.Model, minYear, maxYear)
	if err != nil {
		return nil, err
	}

	ranked := make([]*models.FuzzyMatchResult, 0)
	for i := range candidates {
		candidate := &candidates[i]
		scored, err := s.calculator.Score(listing, candidate)
		if err != nil {
			return nil, err
		}
		if scored.Score < s.config.MatchThreshold {
			continue
		}

		result := models.MatchedWith(candidate, models.MatchMethodFuzzyAttributes, scored.Score)
		result.FieldScores = scored.FieldScores
		ranked = append(ranked, result)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	return ranked, nil
}

func (s *Service) yearRange(year *int) (int, int) {
	if year != nil {
		return *year - s.config.YearWindow, *year + s.config.YearWindow
	}
	return blocking.UnknownYearRange(s.now().Year())
}
