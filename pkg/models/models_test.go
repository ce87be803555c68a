package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuzzyMatchResult_IsMatch(t *testing.T) {
	var missing *FuzzyMatchResult
	assert.False(t, missing.IsMatch())
	assert.False(t, NoMatch().IsMatch())

	vehicle := "veh-1"
	match := MatchedWith(&CandidateListing{ListingID: "l-1", LinkedVehicleID: &vehicle}, MatchMethodExactVIN, 100)
	assert.True(t, match.IsMatch())
	assert.Equal(t, "l-1", *match.MatchedListingID)
	assert.Equal(t, "veh-1", *match.MatchedVehicleID)
}

func TestBatchDeduplicationResult_NearMatches(t *testing.T) {
	result := &BatchDeduplicationResult{
		NearMatchCount: 1,
		Results: []DuplicateCheckResult{
			{ExternalID: "a", Status: DuplicateStatusNew},
			{ExternalID: "b", Status: DuplicateStatusNearMatch},
			{ExternalID: "c", Status: DuplicateStatusDuplicate},
		},
	}

	near := result.NearMatches()
	if assert.Len(t, near, 1) {
		assert.Equal(t, "b", near[0].ExternalID)
	}
	assert.False(t, result.Results[0].IsDuplicate())
	assert.True(t, result.Results[2].IsDuplicate())
}
