package models

import "time"

// DuplicateStatus is the bucket an item lands in after batch resolution.
type DuplicateStatus string

const (
	DuplicateStatusNew       DuplicateStatus = "new"
	DuplicateStatusDuplicate DuplicateStatus = "duplicate"
	DuplicateStatusNearMatch DuplicateStatus = "near_match"
)

// DuplicateCheckResult is the per-item outcome of a batch run.
type DuplicateCheckResult struct {
	ExternalID       string             `json:"external_id"`
	SourceSite       string             `json:"source_site"`
	Status           DuplicateStatus    `json:"status"`
	Method           MatchMethod        `json:"method"`
	Confidence       float64            `json:"confidence"`
	MatchedListingID *string            `json:"matched_listing_id,omitempty"`
	MatchedVehicleID *string            `json:"matched_vehicle_id,omitempty"`
	FieldScores      map[string]float64 `json:"field_scores,omitempty"`
	CandidateCount   int                `json:"candidate_count"`
	ProcessingTime   time.Duration      `json:"processing_time"`
}

// IsDuplicate reports whether the item was classified as a duplicate.
func (r *DuplicateCheckResult) IsDuplicate() bool {
	return r.Status == DuplicateStatusDuplicate
}

// BatchError records an item that could not be classified.
type BatchError struct {
	ExternalID string `json:"external_id"`
	SourceSite string `json:"source_site"`
	Message    string `json:"message"`
}

// BatchDeduplicationResult aggregates the outcome of one batch run.
//
// TotalProcessed == NewListingCount + DuplicateCount + NearMatchCount, and
// DuplicateCount == IntraBatchDuplicateCount + VinMatchCount + ExternalIDMatchCount +
// FuzzyMatchCount + ImageMatchCount.
type BatchDeduplicationResult struct {
	BatchID                  string                 `json:"batch_id"`
	TenantID                 string                 `json:"tenant_id"`
	TotalReceived            int                    `json:"total_received"`
	TotalProcessed           int                    `json:"total_processed"`
	NewListingCount          int                    `json:"new_listing_count"`
	DuplicateCount           int                    `json:"duplicate_count"`
	NearMatchCount           int                    `json:"near_match_count"`
	IntraBatchDuplicateCount int                    `json:"intra_batch_duplicate_count"`
	VinMatchCount            int                    `json:"vin_match_count"`
	ExternalIDMatchCount     int                    `json:"external_id_match_count"`
	FuzzyMatchCount          int                    `json:"fuzzy_match_count"`
	ImageMatchCount          int                    `json:"image_match_count"`
	CandidateCount           int                    `json:"candidate_count"`
	Results                  []DuplicateCheckResult `json:"results"`
	Errors                   []BatchError           `json:"errors"`
	StartedAt                time.Time              `json:"started_at"`
	CompletedAt              time.Time              `json:"completed_at"`
	Duration                 time.Duration          `json:"duration"`
}

// NearMatches returns the items flagged for review.
func (r *BatchDeduplicationResult) NearMatches() []DuplicateCheckResult {
	out := make([]DuplicateCheckResult, 0, r.NearMatchCount)
	for _, item := range r.Results {
		if item.Status == DuplicateStatusNearMatch {
			out = append(out, item)
		}
	}
	return out
}
