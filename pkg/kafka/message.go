package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ListingBatchMessage is the payload scrapers publish to the input topic
type ListingBatchMessage struct {
	BatchID     string                            `json:"batch_id"`
	TenantID    string                            `json:"tenant_id"`
	Listings    []models.ScrapedListing           `json:"listings"`
	Options     *models.DuplicateDetectionOptions `json:"options,omitempty"`
	RequestedAt time.Time                         `json:"requested_at,omitempty"`
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Batch *ListingBatchMessage
}

// ParseBatch decodes the message value as a listing batch
func (m *IncomingMessage) ParseBatch() error {
	var batch ListingBatchMessage
	if err := json.Unmarshal(m.Value, &batch); err != nil {
		return fmt.Errorf("invalid listing batch payload: %w", err)
	}
	if batch.TenantID == "" {
		batch.TenantID = m.Headers["tenant_id"]
	}
	if strings.TrimSpace(batch.TenantID) == "" {
		return fmt.Errorf("listing batch is missing tenant_id")
	}
	if batch.BatchID == "" {
		batch.BatchID = m.Key
	}
	m.Batch = &batch
	return nil
}

// GetTenantID returns the tenant from the parsed batch, falling back to the header
func (m *IncomingMessage) GetTenantID() string {
	if m.Batch != nil && m.Batch.TenantID != "" {
		return m.Batch.TenantID
	}
	return m.Headers["tenant_id"]
}

// GetBatchID returns the batch id from the parsed batch, falling back to the message key
func (m *IncomingMessage) GetBatchID() string {
	if m.Batch != nil && m.Batch.BatchID != "" {
		return m.Batch.BatchID
	}
	return m.Key
}

// Event is an outbound message on the events topic
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	TenantID  string          `json:"tenant_id"`
	BatchID   string          `json:"batch_id,omitempty"`
	Key       string          `json:"-"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
