package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

func ptr[T any](v T) *T { return &v }

type findCall struct {
	makes            []string
	minYear, maxYear int
}

type fakeCandidateStore struct {
	mu         sync.Mutex
	candidates []models.CandidateListing
	err        error
	calls      []findCall
}

func (f *fakeCandidateStore) FindCandidates(_ context.Context, _ string, makes []string, minYear, maxYear int) ([]models.CandidateListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, findCall{makes, minYear, maxYear})
	if f.err != nil {
		return nil, f.err
	}
	var out []models.CandidateListing
	for _, c := range f.candidates {
		for _, m := range makes {
			if strings.EqualFold(c.Make, m) && c.Year >= minYear && c.Year <= maxYear {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

type fakeCache struct {
	data   map[string][]models.CandidateListing
	getErr error
	sets   int
}

func (f *fakeCache) Get(_ context.Context, key string) ([]models.CandidateListing, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	c, ok := f.data[key]
	return c, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, candidates []models.CandidateListing) error {
	if f.data == nil {
		f.data = map[string][]models.CandidateListing{}
	}
	f.data[key] = candidates
	f.sets++
	return nil
}

type fakeImageMatcher struct {
	mu    sync.Mutex
	fn    func(listing *models.ScrapedListing) (*ImageMatch, error)
	calls int
}

func (f *fakeImageMatcher) FindImageMatch(_ context.Context, listing *models.ScrapedListing, _ []*models.CandidateListing) (*ImageMatch, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(listing)
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestService(t *testing.T, store CandidateStore, config Config, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(noopLogger(), store, config, opts...)
	require.NoError(t, err)
	return svc
}

func assertCountInvariants(t *testing.T, r *models.BatchDeduplicationResult) {
	t.Helper()
	assert.Equal(t, r.TotalProcessed, r.NewListingCount+r.DuplicateCount+r.NearMatchCount)
	assert.Equal(t, r.DuplicateCount,
		r.IntraBatchDuplicateCount+r.VinMatchCount+r.ExternalIDMatchCount+r.FuzzyMatchCount+r.ImageMatchCount)
	assert.Equal(t, r.TotalProcessed, len(r.Results))
}

func resultFor(t *testing.T, r *models.BatchDeduplicationResult, externalID string) models.DuplicateCheckResult {
	t.Helper()
	for _, item := range r.Results {
		if item.ExternalID == externalID {
			return item
		}
	}
	require.Failf(t, "missing result", "no result for %s", externalID)
	return models.DuplicateCheckResult{}
}

func storedCamry(id string) models.CandidateListing {
	return models.CandidateListing{
		ListingID: id, Make: "Toyota", Model: "Camry", Year: 2020, Price: 25000, Mileage: ptr(30000),
		City: ptr("Austin"), ExternalID: "stored-" + id, SourceSite: "autotrader", LinkedVehicleID: ptr("veh-" + id),
	}
}

func incomingCamry(externalID string) models.ScrapedListing {
	return models.ScrapedListing{
		TenantID: "t1", ExternalID: externalID, SourceSite: "cars.com",
		Make: "Toyota", Model: "Camry", Year: ptr(2020), Price: 25000, Mileage: ptr(30000), City: ptr("Austin"),
	}
}

func TestProcessBatch_IntraBatchDuplicates(t *testing.T) {
	store := &fakeCandidateStore{}
	svc := newTestService(t, store, DefaultConfig())

	a := incomingCamry("a")
	a.VIN = ptr("1HGCM82633A004352")
	b := incomingCamry("b")
	b.VIN = ptr("1hgcm82633a004352")
	c := incomingCamry("c")
	cDup := incomingCamry("c")
	cDup.Price = 24000

	result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{a, b, c, cDup}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalReceived)
	assert.Equal(t, 4, result.TotalProcessed)
	assert.Equal(t, 2, result.IntraBatchDuplicateCount)
	assert.Equal(t, 2, result.DuplicateCount)
	assert.Equal(t, 2, result.NewListingCount)
	assert.Equal(t, models.MatchMethodIntraBatch, resultFor(t, result, "b").Method)
	assertCountInvariants(t, result)
}

func TestProcessBatch_IdentityMatches(t *testing.T) {
	vinStored := storedCamry("vin")
	vinStored.VIN = ptr("1HGCM82633A004352")
	vinStored.Model = "Avalon" // VIN decides regardless of attributes
	extStored := storedCamry("ext")
	extStored.ExternalID, extStored.SourceSite = "ext-1", "cars.com"
	extStored.Model = "Corolla"
	extStored.City = ptr("Houston")

	store := &fakeCandidateStore{candidates: []models.CandidateListing{vinStored, extStored}}
	svc := newTestService(t, store, DefaultConfig())

	byVIN := incomingCamry("new-1")
	byVIN.VIN = ptr("1hgcm82633a004352")
	byVIN.Price = 1000
	byExt := incomingCamry("ext-1")
	byExt.Model = "Prius"
	byExt.City = ptr("El Paso")

	result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{byVIN, byExt}, nil, nil)
	require.NoError(t, err)

	vinItem := resultFor(t, result, "new-1")
	assert.Equal(t, models.DuplicateStatusDuplicate, vinItem.Status)
	assert.Equal(t, models.MatchMethodExactVIN, vinItem.Method)
	assert.Equal(t, 100.0, vinItem.Confidence)
	assert.Equal(t, "vin", *vinItem.MatchedListingID)
	assert.Equal(t, "veh-vin", *vinItem.MatchedVehicleID)

	extItem := resultFor(t, result, "ext-1")
	assert.Equal(t, models.MatchMethodExternalID, extItem.Method)
	assert.Equal(t, "ext", *extItem.MatchedListingID)

	assert.Equal(t, 1, result.VinMatchCount)
	assert.Equal(t, 1, result.ExternalIDMatchCount)
	assert.Equal(t, 2, result.CandidateCount)
	assertCountInvariants(t, result)
}

func TestProcessBatch_FuzzyClassification(t *testing.T) {
	store := &fakeCandidateStore{candidates: []models.CandidateListing{storedCamry("s1")}}
	svc := newTestService(t, store, DefaultConfig())

	auto := incomingCamry("auto")
	auto.Price = 25100 // 30 + 20 + 15 + 12 + 20 = 97

	review := incomingCamry("review")
	review.Year = ptr(2022)
	review.Price = 25250 // 30 + 10 + 15 + 7.5 + 20 = 82.5

	fresh := incomingCamry("fresh")
	fresh.Model = "Corolla"
	fresh.City = ptr("Dallas") // 0 + 20 + 15 + 15 + 0 = 50

	result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{auto, review, fresh}, nil, nil)
	require.NoError(t, err)

	autoItem := resultFor(t, result, "auto")
	assert.Equal(t, models.DuplicateStatusDuplicate, autoItem.Status)
	assert.Equal(t, models.MatchMethodFuzzyMatch, autoItem.Method)
	assert.Equal(t, 97.0, autoItem.Confidence)
	assert.Len(t, autoItem.FieldScores, 5)

	reviewItem := resultFor(t, result, "review")
	assert.Equal(t, models.DuplicateStatusNearMatch, reviewItem.Status)
	assert.Equal(t, 82.5, reviewItem.Confidence)
	assert.Equal(t, "s1", *reviewItem.MatchedListingID)

	freshItem := resultFor(t, result, "fresh")
	assert.Equal(t, models.DuplicateStatusNew, freshItem.Status)
	assert.Equal(t, models.MatchMethodNone, freshItem.Method)
	assert.Equal(t, 1, freshItem.CandidateCount)

	assert.Equal(t, 1, result.FuzzyMatchCount)
	assert.Equal(t, 1, result.NearMatchCount)
	assert.Equal(t, 1, result.NewListingCount)
	assert.Len(t, result.NearMatches(), 1)
	assertCountInvariants(t, result)
}

func TestProcessBatch_Thresholds(t *testing.T) {
	store := &fakeCandidateStore{candidates: []models.CandidateListing{storedCamry("s1")}}
	svc := newTestService(t, store, DefaultConfig())

	review := incomingCamry("review")
	review.Year = ptr(2022)
	review.Price = 25250

	t.Run("lower auto-match threshold", func(t *testing.T) {
		opts := models.DefaultDuplicateDetectionOptions()
		opts.AutoMatchThreshold = 80
		result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{review}, &opts, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.FuzzyMatchCount)
	})

	t.Run("fuzzy disabled", func(t *testing.T) {
		opts := models.DefaultDuplicateDetectionOptions()
		opts.EnableFuzzyMatching = false
		result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{review}, &opts, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.NewListingCount)
	})

	t.Run("wider price tolerance", func(t *testing.T) {
		opts := models.DefaultDuplicateDetectionOptions()
		opts.PriceTolerance = 2500 // price 90 -> 30 + 10 + 15 + 13.5 + 20 = 88.5
		result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{review}, &opts, nil)
		require.NoError(t, err)
		assert.Equal(t, 88.5, result.Results[0].Confidence)
		assert.Equal(t, 1, result.DuplicateCount)
	})
}

func TestProcessBatch_ImageFallback(t *testing.T) {
	store := &fakeCandidateStore{candidates: []models.CandidateListing{storedCamry("s1")}}

	fresh := incomingCamry("photo")
	fresh.Model = "Corolla"
	fresh.City = ptr("Dallas")
	fresh.ImageURLs = []string{"https://img.example/1.jpg"}

	matcher := &fakeImageMatcher{fn: func(_ *models.ScrapedListing) (*ImageMatch, error) {
		return &ImageMatch{ListingID: "s1", Confidence: 92}, nil
	}}
	svc := newTestService(t, store, DefaultConfig(), WithImageMatcher(matcher))

	t.Run("disabled", func(t *testing.T) {
		result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{fresh}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.NewListingCount)
		assert.Equal(t, 0, matcher.calls)
	})

	t.Run("enabled", func(t *testing.T) {
		opts := models.DefaultDuplicateDetectionOptions()
		opts.EnableImageMatching = true
		result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{fresh}, &opts, nil)
		require.NoError(t, err)

		item := resultFor(t, result, "photo")
		assert.Equal(t, models.MatchMethodImageMatch, item.Method)
		assert.Equal(t, 92.0, item.Confidence)
		assert.Equal(t, 1, result.ImageMatchCount)
		assertCountInvariants(t, result)
	})

	t.Run("no images", func(t *testing.T) {
		opts := models.DefaultDuplicateDetectionOptions()
		opts.EnableImageMatching = true
		noPhotos := fresh
		noPhotos.ImageURLs = nil
		before := matcher.calls

		result, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{noPhotos}, &opts, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.NewListingCount)
		assert.Equal(t, before, matcher.calls)
	})
}

func TestProcessBatch_ItemErrors(t *testing.T) {
	store := &fakeCandidateStore{candidates: []models.CandidateListing{storedCamry("s1")}}

	matcher := &fakeImageMatcher{fn: func(l *models.ScrapedListing) (*ImageMatch, error) {
		switch l.ExternalID {
		case "boom":
			return nil, errors.New("hash service unavailable")
		case "panic":
			panic("nil image")
		}
		return nil, nil
	}}
	svc := newTestService(t, store, DefaultConfig(), WithImageMatcher(matcher))

	var listings []models.ScrapedListing
	for _, id := range []string{"ok-1", "boom", "panic", "ok-2"} {
		l := incomingCamry(id)
		l.Model = "Corolla"
		l.City = ptr("Dallas")
		l.ImageURLs = []string{"https://img.example/" + id}
		listings = append(listings, l)
	}

	opts := models.DefaultDuplicateDetectionOptions()
	opts.EnableImageMatching = true
	result, err := svc.ProcessBatch(context.Background(), "t1", listings, &opts, nil)
	require.NoError(t, err)

	require.Len(t, result.Errors, 2)
	failed := []string{result.Errors[0].ExternalID, result.Errors[1].ExternalID}
	assert.ElementsMatch(t, []string{"boom", "panic"}, failed)
	for _, e := range result.Errors {
		assert.NotEmpty(t, e.Message)
	}

	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, 2, result.NewListingCount)
	assertCountInvariants(t, result)
}

func TestProcessBatch_Progress(t *testing.T) {
	store := &fakeCandidateStore{}
	svc := newTestService(t, store, DefaultConfig())

	listings := make([]models.ScrapedListing, 0, 250)
	for i := 0; i < 250; i++ {
		listings = append(listings, incomingCamry(fmt.Sprintf("item-%d", i)))
	}

	var mu sync.Mutex
	var events []int
	totals := map[int]struct{}{}
	result, err := svc.ProcessBatch(context.Background(), "t1", listings, nil, func(processed, total int) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, processed)
		totals[total] = struct{}{}
	})
	require.NoError(t, err)

	sort.Ints(events)
	assert.Equal(t, []int{100, 200, 250}, events)
	assert.Equal(t, map[int]struct{}{250: {}}, totals)
	assert.Equal(t, 250, result.NewListingCount)
	assertCountInvariants(t, result)
}

func TestProcessBatch_Cancellation(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		store := &fakeCandidateStore{}
		svc := newTestService(t, store, DefaultConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.ProcessBatch(ctx, "t1", []models.ScrapedListing{incomingCamry("a")}, nil, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, store.calls)
	})

	t.Run("cancelled mid batch", func(t *testing.T) {
		store := &fakeCandidateStore{}
		cfg := DefaultConfig()
		cfg.Parallelism = 1
		cfg.ProgressInterval = 1
		svc := newTestService(t, store, cfg)

		var listings []models.ScrapedListing
		for i := 0; i < 10; i++ {
			listings = append(listings, incomingCamry(fmt.Sprintf("item-%d", i)))
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		result, err := svc.ProcessBatch(ctx, "t1", listings, nil, func(processed, _ int) {
			if processed == 1 {
				cancel()
			}
		})

		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, result)
		assert.Equal(t, 1, result.TotalProcessed)
		assert.False(t, result.CompletedAt.IsZero())
		assertCountInvariants(t, result)
	})
}

// blockingStore never answers before the caller gives up
type blockingStore struct{}

func (blockingStore) FindCandidates(ctx context.Context, _ string, _ []string, _, _ int) ([]models.CandidateListing, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("failed to find candidates: %s", ctx.Err())
}

func TestProcessBatch_CancelledDuringPrefetch(t *testing.T) {
	svc := newTestService(t, blockingStore{}, DefaultConfig())

	first := incomingCamry("a")
	first.VIN = ptr("1HGCM82633A004352")
	repost := first
	repost.ExternalID = "b"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := svc.ProcessBatch(ctx, "t1", []models.ScrapedListing{first, repost}, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, 1, result.IntraBatchDuplicateCount)
	assert.False(t, result.CompletedAt.IsZero())
	assertCountInvariants(t, result)
}

func TestProcessBatch_InvalidArguments(t *testing.T) {
	svc := newTestService(t, &fakeCandidateStore{}, DefaultConfig())

	t.Run("missing tenant", func(t *testing.T) {
		_, err := svc.ProcessBatch(context.Background(), "", nil, nil, nil)
		assert.True(t, clovererrors.IsInvalidArgument(err))
	})

	t.Run("review above auto-match", func(t *testing.T) {
		opts := models.DefaultDuplicateDetectionOptions()
		opts.ReviewThreshold = 95
		_, err := svc.ProcessBatch(context.Background(), "t1", nil, &opts, nil)
		assert.True(t, clovererrors.IsInvalidArgument(err))
	})

	t.Run("non-positive tolerance", func(t *testing.T) {
		opts := models.DefaultDuplicateDetectionOptions()
		opts.MileageTolerance = 0
		_, err := svc.ProcessBatch(context.Background(), "t1", nil, &opts, nil)
		assert.True(t, clovererrors.IsInvalidArgument(err))
	})

	t.Run("bad weights", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Weights.MakeModel = 0.9
		_, err := NewService(noopLogger(), &fakeCandidateStore{}, cfg)
		assert.True(t, clovererrors.IsInvalidArgument(err))
	})
}

func TestProcessBatch_EmptyBatch(t *testing.T) {
	store := &fakeCandidateStore{}
	svc := newTestService(t, store, DefaultConfig())

	result, err := svc.ProcessBatch(context.Background(), "t1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProcessed)
	assert.NotEmpty(t, result.BatchID)
	assert.Empty(t, store.calls)
}

func TestProcessBatch_BatchIDFromContext(t *testing.T) {
	svc := newTestService(t, &fakeCandidateStore{}, DefaultConfig())

	ctx := appctx.SetBatchID(context.Background(), "batch-42")
	result, err := svc.ProcessBatch(ctx, "t1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "batch-42", result.BatchID)
}

func TestProcessBatch_StoreFailure(t *testing.T) {
	storeErr := errors.New("db down")
	svc := newTestService(t, &fakeCandidateStore{err: storeErr}, DefaultConfig())

	_, err := svc.ProcessBatch(context.Background(), "t1", []models.ScrapedListing{incomingCamry("a")}, nil, nil)
	assert.ErrorIs(t, err, storeErr)
}

func TestPreFetchCandidateBlocks(t *testing.T) {
	listings := []models.ScrapedListing{
		{Make: "Toyota", Year: ptr(2018)},
		{Make: " toyota", Year: ptr(2021)},
		{Make: "Honda", Year: ptr(2019)},
		{Make: "", Year: ptr(1990)},
	}

	t.Run("query shape", func(t *testing.T) {
		store := &fakeCandidateStore{candidates: []models.CandidateListing{
			{ListingID: "1", Make: "Toyota", Year: 2016},
			{ListingID: "2", Make: "Honda", Year: 2023},
			{ListingID: "3", Make: "Honda", Year: 2024},
		}}
		svc := newTestService(t, store, DefaultConfig())

		index, err := svc.PreFetchCandidateBlocks(context.Background(), "t1", listings)
		require.NoError(t, err)

		require.Len(t, store.calls, 1)
		assert.Equal(t, findCall{[]string{"honda", "toyota"}, 2016, 2023}, store.calls[0])
		assert.Equal(t, 2, index.TotalCandidates())
		assert.Equal(t, 2, index.BlockCount())
	})

	t.Run("cache hit skips store", func(t *testing.T) {
		store := &fakeCandidateStore{candidates: []models.CandidateListing{{ListingID: "1", Make: "Toyota", Year: 2018}}}
		cache := &fakeCache{}
		svc := newTestService(t, store, DefaultConfig(), WithCandidateCache(cache))

		_, err := svc.PreFetchCandidateBlocks(context.Background(), "t1", listings)
		require.NoError(t, err)
		assert.Equal(t, 1, cache.sets)

		index, err := svc.PreFetchCandidateBlocks(context.Background(), "t1", listings)
		require.NoError(t, err)
		assert.Len(t, store.calls, 1)
		assert.Equal(t, 1, index.TotalCandidates())
	})

	t.Run("cache error falls through", func(t *testing.T) {
		store := &fakeCandidateStore{}
		cache := &fakeCache{getErr: errors.New("redis down")}
		svc := newTestService(t, store, DefaultConfig(), WithCandidateCache(cache))

		_, err := svc.PreFetchCandidateBlocks(context.Background(), "t1", listings)
		require.NoError(t, err)
		assert.Len(t, store.calls, 1)
	})

	t.Run("no makes", func(t *testing.T) {
		store := &fakeCandidateStore{}
		svc := newTestService(t, store, DefaultConfig())

		index, err := svc.PreFetchCandidateBlocks(context.Background(), "t1", []models.ScrapedListing{{Model: "Camry"}})
		require.NoError(t, err)
		assert.Equal(t, 0, index.TotalCandidates())
		assert.Empty(t, store.calls)
	})
}
