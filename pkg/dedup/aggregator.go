package dedup

import (
	"sync"

	"github.com/Ramsey-B/clover/pkg/models"
)

// aggregator is the single synchronized accumulator shared by batch workers.
// Every counter and list on the result is only touched under mu.
type aggregator struct {
	mu        sync.Mutex
	result    *models.BatchDeduplicationResult
	completed int
	total     int
	interval  int
}

func newAggregator(result *models.BatchDeduplicationResult, total, interval int) *aggregator {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &aggregator{result: result, total: total, interval: interval}
}

// record classifies item into exactly one status bucket and, for duplicates,
// exactly one method counter. It does not advance progress.
func (a *aggregator) record(item models.DuplicateCheckResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordLocked(item)
}

func (a *aggregator) recordLocked(item models.DuplicateCheckResult) {
	r := a.result
	r.Results = append(r.Results, item)
	r.TotalProcessed++

	switch item.Status {
	case models.DuplicateStatusDuplicate:
		r.DuplicateCount++
		switch item.Method {
		case models.MatchMethodIntraBatch:
			r.IntraBatchDuplicateCount++
		case models.MatchMethodExactVIN, models.MatchMethodPartialVIN:
			r.VinMatchCount++
		case models.MatchMethodExternalID:
			r.ExternalIDMatchCount++
		case models.MatchMethodFuzzyMatch, models.MatchMethodFuzzyAttributes:
			r.FuzzyMatchCount++
		case models.MatchMethodImageMatch:
			r.ImageMatchCount++
		}
	case models.DuplicateStatusNearMatch:
		r.NearMatchCount++
	default:
		r.NewListingCount++
	}
}

// complete records a resolved item and advances progress. It returns the
// completed count and whether a progress event is due.
func (a *aggregator) complete(item models.DuplicateCheckResult) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordLocked(item)
	return a.advanceLocked()
}

// fail records an item that could not be classified and advances progress.
func (a *aggregator) fail(batchErr models.BatchError) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result.Errors = append(a.result.Errors, batchErr)
	return a.advanceLocked()
}

func (a *aggregator) advanceLocked() (int, bool) {
	a.completed++
	return a.completed, a.completed%a.interval == 0 || a.completed == a.total
}
