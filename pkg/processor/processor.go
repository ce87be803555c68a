package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/dedup"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// BatchDeduplicator classifies a batch of listings
type BatchDeduplicator interface {
	ProcessBatch(
		ctx context.Context,
		tenantID string,
		listings []models.ScrapedListing,
		options *models.DuplicateDetectionOptions,
		progress dedup.ProgressFunc,
	) (*models.BatchDeduplicationResult, error)
}

// ResultEmitter publishes the outcome of a batch
type ResultEmitter interface {
	EmitBatchResult(ctx context.Context, result *models.BatchDeduplicationResult, cancelled bool) error
}

type ProcessorConfig struct {
	// ProcessTimeout bounds a single batch. A batch that times out is emitted
	// as a cancelled partial result and committed.
	ProcessTimeout time.Duration

	// DefaultOptions apply when a message carries no options of its own
	DefaultOptions models.DuplicateDetectionOptions
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		ProcessTimeout: 5 * time.Minute,
		DefaultOptions: models.DefaultDuplicateDetectionOptions(),
	}
}

type Stats struct {
	BatchesProcessed int64
	BatchesRejected  int64
	BatchesFailed    int64
	BatchesTimedOut  int64
	ListingsReceived int64
}

// Processor runs consumed listing batches through deduplication and emits the results
type Processor struct {
	config  ProcessorConfig
	batches BatchDeduplicator
	emitter ResultEmitter
	logger  ectologger.Logger

	mu    sync.Mutex
	stats Stats
}

func NewProcessor(config ProcessorConfig, batches BatchDeduplicator, emitter ResultEmitter, logger ectologger.Logger) *Processor {
	return &Processor{
		config:  config,
		batches: batches,
		emitter: emitter,
		logger:  logger,
	}
}

// MessageHandler adapts the processor to the Kafka consumer
func (p *Processor) MessageHandler() kafka.MessageHandler {
	return p.ProcessMessage
}

// ProcessMessage handles one listing batch. A returned error leaves the
// message uncommitted so it is redelivered.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	if msg == nil || msg.Batch == nil {
		return fmt.Errorf("listing batch message was not parsed")
	}
	batch := msg.Batch

	ctx = appctx.SetTenantID(ctx, msg.GetTenantID())
	ctx = appctx.SetBatchID(ctx, msg.GetBatchID())
	log := p.logger.WithContext(ctx).WithFields(appctx.Fields(ctx))

	options := batch.Options
	if options == nil {
		defaults := p.config.DefaultOptions
		options = &defaults
	}

	runCtx := ctx
	if p.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.config.ProcessTimeout)
		defer cancel()
	}

	p.record(func(s *Stats) { s.ListingsReceived += int64(len(batch.Listings)) })

	result, err := p.batches.ProcessBatch(runCtx, msg.GetTenantID(), batch.Listings, options, func(processed, total int) {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"batch_id":  msg.GetBatchID(),
			"processed": processed,
			"total":     total,
		}).Debug("Batch progress")
	})

	cancelled := false
	switch {
	case err == nil:
	case clovererrors.IsInvalidArgument(err):
		// redelivery cannot fix a malformed batch
		log.WithError(err).Warn("Rejected listing batch")
		p.record(func(s *Stats) { s.BatchesRejected++ })
		return nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		// our own deadline; redelivery would time out the same way
		log.WithError(err).Warnf("Listing batch timed out after %s, emitting partial result", p.config.ProcessTimeout)
		p.record(func(s *Stats) { s.BatchesTimedOut++ })
		cancelled = true
	default:
		tracing.RecordError(span, err)
		p.record(func(s *Stats) { s.BatchesFailed++ })
		return fmt.Errorf("failed to process batch %s: %w", msg.GetBatchID(), err)
	}

	if err := p.emitter.EmitBatchResult(ctx, result, cancelled); err != nil {
		tracing.RecordError(span, err)
		p.record(func(s *Stats) { s.BatchesFailed++ })
		return err
	}

	p.record(func(s *Stats) { s.BatchesProcessed++ })
	return nil
}

func (p *Processor) record(update func(s *Stats)) {
	p.mu.Lock()
	update(&p.stats)
	p.mu.Unlock()
}

func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
