package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakePublisher struct {
	events []*kafka.Event
	err    error
}

func (f *fakePublisher) PublishEvents(_ context.Context, events []*kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func sampleResult() *models.BatchDeduplicationResult {
	matched := "listing-1"
	return &models.BatchDeduplicationResult{
		BatchID:         "b-1",
		TenantID:        "tenant-1",
		TotalReceived:   3,
		TotalProcessed:  3,
		NewListingCount: 1,
		DuplicateCount:  1,
		NearMatchCount:  1,
		VinMatchCount:   1,
		Results: []models.DuplicateCheckResult{
			{ExternalID: "a", SourceSite: "s", Status: models.DuplicateStatusNew, Method: models.MatchMethodNone},
			{ExternalID: "b", SourceSite: "s", Status: models.DuplicateStatusDuplicate, Method: models.MatchMethodExactVIN, Confidence: 100, MatchedListingID: &matched},
			{ExternalID: "c", SourceSite: "s", Status: models.DuplicateStatusNearMatch, Method: models.MatchMethodFuzzyMatch, Confidence: 75},
		},
	}
}

func TestBuildEvents(t *testing.T) {
	events, err := BuildEvents(sampleResult(), false)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, EventDuplicateDetected, events[0].EventType)
	assert.Equal(t, "s:b", events[0].Key)
	assert.Equal(t, EventReviewRequired, events[1].EventType)
	assert.Equal(t, "s:c", events[1].Key)
	assert.Equal(t, EventBatchCompleted, events[2].EventType)
	assert.Equal(t, "b-1", events[2].BatchID)
	assert.NotEmpty(t, events[0].EventID)
	assert.NotEqual(t, events[0].EventID, events[1].EventID)

	var item models.DuplicateCheckResult
	require.NoError(t, json.Unmarshal(events[0].Data, &item))
	assert.Equal(t, models.MatchMethodExactVIN, item.Method)
	require.NotNil(t, item.MatchedListingID)
	assert.Equal(t, "listing-1", *item.MatchedListingID)

	var summary BatchSummary
	require.NoError(t, json.Unmarshal(events[2].Data, &summary))
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 1, summary.VinMatchCount)
	assert.False(t, summary.Cancelled)
}

func TestBuildEvents_DuplicatesBeforeReviews(t *testing.T) {
	result := &models.BatchDeduplicationResult{
		BatchID:        "b-2",
		TenantID:       "tenant-1",
		DuplicateCount: 2,
		NearMatchCount: 1,
		Results: []models.DuplicateCheckResult{
			{ExternalID: "r", SourceSite: "s", Status: models.DuplicateStatusNearMatch, Method: models.MatchMethodFuzzyMatch, Confidence: 72},
			{ExternalID: "n", SourceSite: "s", Status: models.DuplicateStatusNew, Method: models.MatchMethodNone},
			{ExternalID: "d1", SourceSite: "s", Status: models.DuplicateStatusDuplicate, Method: models.MatchMethodIntraBatch, Confidence: 100},
			{ExternalID: "d2", SourceSite: "s", Status: models.DuplicateStatusDuplicate, Method: models.MatchMethodFuzzyMatch, Confidence: 91},
		},
	}

	events, err := BuildEvents(result, false)
	require.NoError(t, err)

	var got []string
	for _, e := range events {
		got = append(got, e.EventType+"/"+e.Key)
	}
	assert.Equal(t, []string{
		EventDuplicateDetected + "/s:d1",
		EventDuplicateDetected + "/s:d2",
		EventReviewRequired + "/s:r",
		EventBatchCompleted + "/",
	}, got)
}

func TestEmitter_EmitBatchResult(t *testing.T) {
	publisher := &fakePublisher{}
	emitter := NewEmitter(publisher, testLogger())

	require.NoError(t, emitter.EmitBatchResult(context.Background(), sampleResult(), true))
	require.Len(t, publisher.events, 3)

	var summary BatchSummary
	require.NoError(t, json.Unmarshal(publisher.events[2].Data, &summary))
	assert.True(t, summary.Cancelled)
}

func TestEmitter_EmitBatchResult_PublishError(t *testing.T) {
	boom := errors.New("broker down")
	emitter := NewEmitter(&fakePublisher{err: boom}, testLogger())

	err := emitter.EmitBatchResult(context.Background(), sampleResult(), false)
	assert.ErrorIs(t, err, boom)
}

func TestEmitter_EmitBatchResult_Nil(t *testing.T) {
	publisher := &fakePublisher{}
	emitter := NewEmitter(publisher, testLogger())

	require.NoError(t, emitter.EmitBatchResult(context.Background(), nil, false))
	assert.Empty(t, publisher.events)
}
