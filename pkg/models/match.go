package models

// MatchMethod identifies which pipeline stage produced a match decision.
type MatchMethod string

const (
	MatchMethodNone            MatchMethod = "none"
	MatchMethodExactVIN        MatchMethod = "exact_vin"
	MatchMethodPartialVIN      MatchMethod = "partial_vin"
	MatchMethodExternalID      MatchMethod = "external_id"
	MatchMethodFuzzyAttributes MatchMethod = "fuzzy_attributes" // single-item weighted scoring
	MatchMethodFuzzyMatch      MatchMethod = "fuzzy_match"      // batch weighted scoring
	MatchMethodImageMatch      MatchMethod = "image_match"
	MatchMethodIntraBatch      MatchMethod = "intra_batch"
)

// Field names used as keys in score breakdowns.
const (
	FieldMake      = "make"
	FieldModel     = "model"
	FieldMakeModel = "make_model"
	FieldYear      = "year"
	FieldMileage   = "mileage"
	FieldPrice     = "price"
	FieldLocation  = "location"
)

// FuzzyMatchResult is the outcome of resolving a single incoming listing.
type FuzzyMatchResult struct {
	Method           MatchMethod        `json:"method"`
	Confidence       float64            `json:"confidence"` // 0..100
	MatchedListingID *string            `json:"matched_listing_id,omitempty"`
	MatchedVehicleID *string            `json:"matched_vehicle_id,omitempty"`
	FieldScores      map[string]float64 `json:"field_scores,omitempty"`
}

// IsMatch reports whether a stored listing was identified.
func (r *FuzzyMatchResult) IsMatch() bool {
	return r != nil && r.Method != MatchMethodNone && r.MatchedListingID != nil
}

// NoMatch is the explicit "nothing found" outcome.
func NoMatch() *FuzzyMatchResult {
	return &FuzzyMatchResult{Method: MatchMethodNone, Confidence: 0}
}

// MatchedWith builds a match outcome pointing at candidate.
func MatchedWith(candidate *CandidateListing, method MatchMethod, confidence float64) *FuzzyMatchResult {
	id := candidate.ListingID
	return &FuzzyMatchResult{
		Method:           method,
		Confidence:       confidence,
		MatchedListingID: &id,
		MatchedVehicleID: candidate.LinkedVehicleID,
	}
}
