// Package dedup classifies a batch of scraped listings as new, duplicate or
// near-match against each other and against the stored listing population.
package dedup

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/blocking"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultProgressInterval is how many completed items pass between progress events.
const DefaultProgressInterval = 100

// CandidateStore loads the stored listings a batch is compared against.
type CandidateStore interface {
	// FindCandidates returns active listings for the tenant whose normalized
	// make is in makes and whose year is in [minYear, maxYear].
	FindCandidates(ctx context.Context, tenantID string, makes []string, minYear, maxYear int) ([]models.CandidateListing, error)
}

// ImageMatch is a positive answer from an ImageMatcher.
type ImageMatch struct {
	ListingID  string
	VehicleID  *string
	Confidence float64 // 0..100
}

// ImageMatcher compares listing photos against candidates. It is consulted
// only when attribute scoring is inconclusive, and may be called concurrently.
// It returns nil when no candidate matches.
type ImageMatcher interface {
	FindImageMatch(ctx context.Context, listing *models.ScrapedListing, candidates []*models.CandidateListing) (*ImageMatch, error)
}

// ProgressFunc receives (processed, total) every progress interval and after
// the final item. It is called outside the aggregation lock, from worker
// goroutines, so events may arrive slightly out of order.
type ProgressFunc func(processed, total int)

// Config contains configuration for the batch service
type Config struct {
	Weights          Weights
	Parallelism      int // Max concurrent item workers; 0 uses max(1, NumCPU/2)
	ProgressInterval int // default: 100
}

// DefaultConfig returns default batch configuration
func DefaultConfig() Config {
	return Config{
		Weights:          DefaultWeights(),
		Parallelism:      0,
		ProgressInterval: DefaultProgressInterval,
	}
}

func (c Config) parallelism() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	return max(1, runtime.NumCPU()/2)
}

// Option configures optional collaborators of the Service
type Option func(*Service)

// WithCandidateCache caches pre-fetched candidate slices
func WithCandidateCache(cache blocking.CandidateCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithImageMatcher enables the image fallback stage
func WithImageMatcher(matcher ImageMatcher) Option {
	return func(s *Service) {
		s.images = matcher
	}
}

// Service implements batch deduplication
type Service struct {
	logger ectologger.Logger
	store  CandidateStore
	cache  blocking.CandidateCache
	images ImageMatcher
	config Config
	now    func() time.Time
}

// NewService creates a batch service. The weight table is validated here so
// a bad configuration fails before any batch runs.
func NewService(logger ectologger.Logger, store CandidateStore, config Config, opts ...Option) (*Service, error) {
	if err := config.Weights.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		logger: logger,
		store:  store,
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProcessBatch deduplicates listings for one tenant. A nil options uses
// models.DefaultDuplicateDetectionOptions. The batch id is taken from ctx
// when the caller set one.
//
// Per-item failures are recorded in the result and never abort the batch.
// On cancellation, including during the candidate pre-fetch, no new items
// start; the partial result is returned along with ctx.Err().
func (s *Service) ProcessBatch(
	ctx context.Context,
	tenantID string,
	listings []models.ScrapedListing,
	options *models.DuplicateDetectionOptions,
	progress ProgressFunc,
) (*models.BatchDeduplicationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Service.ProcessBatch")
	defer span.End()

	if tenantID == "" {
		return nil, clovererrors.NewInvalidArgument("tenantID", "is required")
	}
	opts := models.DefaultDuplicateDetectionOptions()
	if options != nil {
		opts = *options
	}
	if err := clovererrors.ValidateStruct("options", &opts); err != nil {
		return nil, err
	}

	batchID := appctx.GetBatchID(ctx)
	if batchID == "" {
		batchID = uuid.New().String()
	}

	result := &models.BatchDeduplicationResult{
		BatchID:       batchID,
		TenantID:      tenantID,
		TotalReceived: len(listings),
		Results:       make([]models.DuplicateCheckResult, 0, len(listings)),
		Errors:        []models.BatchError{},
		StartedAt:     s.now().UTC(),
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"batch_id":  result.BatchID,
		"received":  len(listings),
	})
	log.Info("Processing listing batch")

	survivors, intraDuplicates := dedupeWithinBatch(listings)

	// intra-batch duplicates are classified up front and do not count toward progress
	agg := newAggregator(result, len(survivors), s.config.ProgressInterval)
	for _, dup := range intraDuplicates {
		agg.record(dup)
		metrics.RecordClassification(string(dup.Status), string(dup.Method), 0)
	}

	if len(survivors) == 0 {
		return s.finish(ctx, result, nil), nil
	}

	index, err := s.PreFetchCandidateBlocks(ctx, tenantID, survivors)
	if err != nil {
		// stores may wrap the context error, so check ctx itself
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.WithError(err).Warn("Batch cancelled while pre-fetching candidates")
			return s.finish(ctx, result, ctxErr), ctxErr
		}
		log.WithError(err).Error("Failed to pre-fetch candidate blocks")
		tracing.RecordError(span, err)
		metrics.RecordBatch("failed", s.now().Sub(result.StartedAt).Seconds())
		return nil, err
	}
	result.CandidateCount = index.TotalCandidates()

	scorer := newBatchScorer(s.config.Weights, opts)

	g := new(errgroup.Group)
	g.SetLimit(s.config.parallelism())

	for i := range survivors {
		if ctx.Err() != nil {
			break
		}
		listing := &survivors[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			item, err := s.safeResolve(ctx, listing, index, scorer, opts)

			var processed int
			var notify bool
			if err != nil {
				log.WithError(err).WithFields(map[string]any{
					"external_id": listing.ExternalID,
					"source_site": listing.SourceSite,
				}).Warn("Failed to classify listing")
				metrics.RecordItemError()
				processed, notify = agg.fail(models.BatchError{
					ExternalID: listing.ExternalID,
					SourceSite: listing.SourceSite,
					Message:    err.Error(),
				})
			} else {
				metrics.RecordClassification(string(item.Status), string(item.Method), item.ProcessingTime.Seconds())
				processed, notify = agg.complete(*item)
			}

			if notify && progress != nil {
				progress(processed, len(survivors))
			}
			return nil
		})
	}

	// workers never return errors; failures are recorded per item
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.WithError(err).WithField("processed", result.TotalProcessed).Warn("Batch cancelled")
		return s.finish(ctx, result, err), err
	}

	return s.finish(ctx, result, nil), nil
}

// PreFetchCandidateBlocks loads every active candidate whose make appears in
// listings and whose year lies within the batch year span widened by the
// block window, and indexes them. Callers may use it to warm an index ahead
// of a batch.
func (s *Service) PreFetchCandidateBlocks(ctx context.Context, tenantID string, listings []models.ScrapedListing) (*blocking.Index, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Service.PreFetchCandidateBlocks")
	defer span.End()

	if tenantID == "" {
		return nil, clovererrors.NewInvalidArgument("tenantID", "is required")
	}

	currentYear := func() int { return s.now().Year() }

	makes := distinctMakes(listings)
	if len(makes) == 0 {
		return blocking.NewIndex(nil, blocking.WithCurrentYear(currentYear)), nil
	}
	minYear, maxYear := s.yearSpan(listings)

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"makes":     len(makes),
		"min_year":  minYear,
		"max_year":  maxYear,
	})

	cacheKey := fingerprint.CandidateQuery(tenantID, makes, minYear, maxYear)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, cacheKey)
		switch {
		case err != nil:
			log.WithError(err).Warn("Candidate cache lookup failed, loading from store")
			metrics.RecordCacheLookup("error")
		case ok:
			log.WithField("candidates", len(cached)).Debug("Candidate cache hit")
			metrics.RecordCacheLookup("hit")
			metrics.RecordPrefetch(len(cached))
			return blocking.NewIndex(cached, blocking.WithCurrentYear(currentYear)), nil
		default:
			metrics.RecordCacheLookup("miss")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates, err := s.store.FindCandidates(ctx, tenantID, makes, minYear, maxYear)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, candidates); err != nil {
			log.WithError(err).Warn("Failed to cache candidates")
		}
	}

	index := blocking.NewIndex(candidates, blocking.WithCurrentYear(currentYear))
	metrics.RecordPrefetch(len(candidates))
	log.WithFields(map[string]any{
		"candidates": index.TotalCandidates(),
		"blocks":     index.BlockCount(),
	}).Debug("Built candidate block index")

	return index, nil
}

// safeResolve turns a panic in one item into an item error.
func (s *Service) safeResolve(
	ctx context.Context,
	listing *models.ScrapedListing,
	index *blocking.Index,
	scorer *batchScorer,
	opts models.DuplicateDetectionOptions,
) (item *models.DuplicateCheckResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			item = nil
			err = fmt.Errorf("panic while classifying listing: %v", r)
		}
	}()
	return s.resolve(ctx, listing, index, scorer, opts)
}

// resolve runs the per-item pipeline: VIN, external id, weighted attributes,
// then images. Anything left undecided is new.
func (s *Service) resolve(
	ctx context.Context,
	listing *models.ScrapedListing,
	index *blocking.Index,
	scorer *batchScorer,
	opts models.DuplicateDetectionOptions,
) (*models.DuplicateCheckResult, error) {
	start := time.Now()
	candidates := index.Lookup(listing.Make, listing.Year)

	item := &models.DuplicateCheckResult{
		ExternalID:     listing.ExternalID,
		SourceSite:     listing.SourceSite,
		Status:         models.DuplicateStatusNew,
		Method:         models.MatchMethodNone,
		CandidateCount: len(candidates),
	}
	defer func() {
		item.ProcessingTime = time.Since(start)
	}()

	if vin := normalizers.NormalizeVIN(listing.VINValue()); vin != "" {
		for _, c := range candidates {
			if normalizers.NormalizeVIN(c.VINValue()) == vin {
				markDuplicate(item, c, models.MatchMethodExactVIN, 100)
				return item, nil
			}
		}
	}

	for _, c := range candidates {
		if c.ExternalID == listing.ExternalID && c.SourceSite == listing.SourceSite {
			markDuplicate(item, c, models.MatchMethodExternalID, 100)
			return item, nil
		}
	}

	if opts.EnableFuzzyMatching && listing.HasMakeAndModel() {
		var best *models.CandidateListing
		var bestScore float64
		var bestFields map[string]float64
		for _, c := range candidates {
			score, fields := scorer.score(listing, c)
			if best == nil || score > bestScore {
				best, bestScore, bestFields = c, score, fields
			}
		}

		if best != nil {
			switch {
			case bestScore >= opts.AutoMatchThreshold:
				markDuplicate(item, best, models.MatchMethodFuzzyMatch, bestScore)
				item.FieldScores = bestFields
				return item, nil
			case bestScore >= opts.ReviewThreshold:
				markMatched(item, best, models.MatchMethodFuzzyMatch, bestScore)
				item.Status = models.DuplicateStatusNearMatch
				item.FieldScores = bestFields
				return item, nil
			}
		}
	}

	if opts.EnableImageMatching && s.images != nil && len(listing.ImageURLs) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		match, err := s.images.FindImageMatch(ctx, listing, candidates)
		if err != nil {
			return nil, fmt.Errorf("image matching failed: %w", err)
		}
		if match != nil {
			id := match.ListingID
			item.Status = models.DuplicateStatusDuplicate
			item.Method = models.MatchMethodImageMatch
			item.Confidence = match.Confidence
			item.MatchedListingID = &id
			item.MatchedVehicleID = match.VehicleID
			return item, nil
		}
	}

	return item, nil
}

func markMatched(item *models.DuplicateCheckResult, c *models.CandidateListing, method models.MatchMethod, confidence float64) {
	id := c.ListingID
	item.Method = method
	item.Confidence = confidence
	item.MatchedListingID = &id
	item.MatchedVehicleID = c.LinkedVehicleID
}

func markDuplicate(item *models.DuplicateCheckResult, c *models.CandidateListing, method models.MatchMethod, confidence float64) {
	markMatched(item, c, method, confidence)
	item.Status = models.DuplicateStatusDuplicate
}

func (s *Service) finish(ctx context.Context, result *models.BatchDeduplicationResult, cause error) *models.BatchDeduplicationResult {
	result.CompletedAt = s.now().UTC()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	outcome := "completed"
	if cause != nil {
		outcome = "cancelled"
	}
	metrics.RecordBatch(outcome, result.Duration.Seconds())

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":           result.TenantID,
		"batch_id":            result.BatchID,
		"received":            result.TotalReceived,
		"processed":           result.TotalProcessed,
		"new":                 result.NewListingCount,
		"duplicates":          result.DuplicateCount,
		"near_matches":        result.NearMatchCount,
		"intra_batch":         result.IntraBatchDuplicateCount,
		"vin_matches":         result.VinMatchCount,
		"external_id_matches": result.ExternalIDMatchCount,
		"fuzzy_matches":       result.FuzzyMatchCount,
		"image_matches":       result.ImageMatchCount,
		"errors":              len(result.Errors),
		"candidates":          result.CandidateCount,
		"duration_ms":         result.Duration.Milliseconds(),
		"outcome":             outcome,
	}).Info("Finished listing batch")

	return result
}

// dedupeWithinBatch keeps the first listing per identity key. Later
// occurrences come back as intra-batch duplicate results.
func dedupeWithinBatch(listings []models.ScrapedListing) ([]models.ScrapedListing, []models.DuplicateCheckResult) {
	seen := make(map[string]struct{}, len(listings))
	survivors := make([]models.ScrapedListing, 0, len(listings))
	var duplicates []models.DuplicateCheckResult

	for _, l := range listings {
		key := batchKey(&l)
		if _, ok := seen[key]; ok {
			duplicates = append(duplicates, models.DuplicateCheckResult{
				ExternalID: l.ExternalID,
				SourceSite: l.SourceSite,
				Status:     models.DuplicateStatusDuplicate,
				Method:     models.MatchMethodIntraBatch,
				Confidence: 100,
			})
			continue
		}
		seen[key] = struct{}{}
		survivors = append(survivors, l)
	}

	return survivors, duplicates
}

func batchKey(l *models.ScrapedListing) string {
	if vin := normalizers.NormalizeVIN(l.VINValue()); vin != "" {
		return "vin:" + vin
	}
	return "ext:" + strings.ToLower(strings.TrimSpace(l.SourceSite)) + ":" + strings.TrimSpace(l.ExternalID)
}

// distinctMakes returns the sorted set of normalized, non-empty makes.
func distinctMakes(listings []models.ScrapedListing) []string {
	withMake := ectolinq.Filter(listings, func(l models.ScrapedListing) bool {
		return normalizers.NormalizeMake(l.Make) != ""
	})
	normalized := ectolinq.Map(withMake, func(l models.ScrapedListing) string {
		return normalizers.NormalizeMake(l.Make)
	})

	makes := make([]string, 0, len(normalized))
	for _, m := range normalized {
		if !ectolinq.Contains(makes, m) {
			makes = append(makes, m)
		}
	}
	sort.Strings(makes)
	return makes
}

// yearSpan is the overall batch year range widened by the block window. A
// listing without a year widens it to the unknown-year range. Listings
// without a make never reach the index and are ignored.
func (s *Service) yearSpan(listings []models.ScrapedListing) (int, int) {
	minYear, maxYear := 0, 0
	found := false
	for _, l := range listings {
		if normalizers.NormalizeMake(l.Make) == "" {
			continue
		}
		var lo, hi int
		if l.Year != nil {
			lo, hi = *l.Year-blocking.YearWindow, *l.Year+blocking.YearWindow
		} else {
			lo, hi = blocking.UnknownYearRange(s.now().Year())
		}
		if !found || lo < minYear {
			minYear = lo
		}
		if !found || hi > maxYear {
			maxYear = hi
		}
		found = true
	}
	return minYear, maxYear
}
