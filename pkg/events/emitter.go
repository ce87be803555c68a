// Package events turns batch outcomes into messages for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	EventDuplicateDetected = "listing.duplicate_detected"
	EventReviewRequired    = "listing.review_required"
	EventBatchCompleted    = "batch.completed"
)

// Publisher delivers events to the broker
type Publisher interface {
	PublishEvents(ctx context.Context, events []*kafka.Event) error
}

// BatchSummary is the payload of a batch.completed event
type BatchSummary struct {
	TotalReceived            int                 `json:"total_received"`
	TotalProcessed           int                 `json:"total_processed"`
	NewListingCount          int                 `json:"new_listing_count"`
	DuplicateCount           int                 `json:"duplicate_count"`
	NearMatchCount           int                 `json:"near_match_count"`
	IntraBatchDuplicateCount int                 `json:"intra_batch_duplicate_count"`
	VinMatchCount            int                 `json:"vin_match_count"`
	ExternalIDMatchCount     int                 `json:"external_id_match_count"`
	FuzzyMatchCount          int                 `json:"fuzzy_match_count"`
	ImageMatchCount          int                 `json:"image_match_count"`
	CandidateCount           int                 `json:"candidate_count"`
	Errors                   []models.BatchError `json:"errors,omitempty"`
	Cancelled                bool                `json:"cancelled"`
	StartedAt                time.Time           `json:"started_at"`
	CompletedAt              time.Time           `json:"completed_at"`
	DurationMs               int64               `json:"duration_ms"`
}

type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitBatchResult publishes one event per duplicate and near match, followed by batch.completed.
func (e *Emitter) EmitBatchResult(ctx context.Context, result *models.BatchDeduplicationResult, cancelled bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchResult")
	defer span.End()

	if result == nil {
		return nil
	}

	events, err := BuildEvents(result, cancelled)
	if err != nil {
		return err
	}

	if err := e.publisher.PublishEvents(ctx, events); err != nil {
		return fmt.Errorf("failed to publish %d events for batch %s: %w", len(events), result.BatchID, err)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    result.BatchID,
		"tenant_id":   result.TenantID,
		"event_count": len(events),
	}).Info("Emitted batch events")
	return nil
}

// BuildEvents renders the event list for a batch result without publishing it.
// Duplicate events come first, then review events, then the batch summary.
func BuildEvents(result *models.BatchDeduplicationResult, cancelled bool) ([]*kafka.Event, error) {
	events := make([]*kafka.Event, 0, result.DuplicateCount+result.NearMatchCount+1)

	for i := range result.Results {
		if !result.Results[i].IsDuplicate() {
			continue
		}
		event, err := itemEvent(result, EventDuplicateDetected, result.Results[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	for _, item := range result.NearMatches() {
		event, err := itemEvent(result, EventReviewRequired, item)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	data, err := json.Marshal(summarize(result, cancelled))
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch summary: %w", err)
	}
	events = append(events, &kafka.Event{
		EventID:   uuid.NewString(),
		EventType: EventBatchCompleted,
		TenantID:  result.TenantID,
		BatchID:   result.BatchID,
		Data:      data,
	})

	return events, nil
}

func itemEvent(result *models.BatchDeduplicationResult, eventType string, item models.DuplicateCheckResult) (*kafka.Event, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event for %s: %w", eventType, item.ExternalID, err)
	}
	return &kafka.Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		TenantID:  result.TenantID,
		BatchID:   result.BatchID,
		Key:       item.SourceSite + ":" + item.ExternalID,
		Data:      data,
	}, nil
}

func summarize(result *models.BatchDeduplicationResult, cancelled bool) BatchSummary {
	return BatchSummary{
		TotalReceived:            result.TotalReceived,
		TotalProcessed:           result.TotalProcessed,
		NewListingCount:          result.NewListingCount,
		DuplicateCount:           result.DuplicateCount,
		NearMatchCount:           result.NearMatchCount,
		IntraBatchDuplicateCount: result.IntraBatchDuplicateCount,
		VinMatchCount:            result.VinMatchCount,
		ExternalIDMatchCount:     result.ExternalIDMatchCount,
		FuzzyMatchCount:          result.FuzzyMatchCount,
		ImageMatchCount:          result.ImageMatchCount,
		CandidateCount:           result.CandidateCount,
		Errors:                   result.Errors,
		Cancelled:                cancelled,
		StartedAt:                result.StartedAt,
		CompletedAt:              result.CompletedAt,
		DurationMs:               result.Duration.Milliseconds(),
	}
}
