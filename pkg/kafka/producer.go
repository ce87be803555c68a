package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const schemaVersion = "1.0"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes dedup events
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compressionCodec(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishEvents writes events in a single batch. Events are keyed by Key so
// that events about the same listing land on the same partition.
func (p *Producer) PublishEvents(ctx context.Context, events []*Event) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	traceParent := tracing.GetTraceParent(ctx)
	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		key := event.Key
		if key == "" {
			key = event.BatchID
		}

		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
			{Key: "schema_version", Value: []byte(schemaVersion)},
		}
		if traceParent != "" {
			headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
		}

		messages[i] = kafka.Message{
			Topic:   p.topic,
			Key:     []byte(key),
			Value:   data,
			Headers: headers,
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
			"topic":      p.topic,
		}).Error("Failed to publish events batch")
		metrics.RecordKafkaMessage("produce", p.topic, "failed")
		return err
	}

	for range events {
		metrics.RecordKafkaMessage("produce", p.topic, "published")
	}
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
		"topic":      p.topic,
	}).Debug("Published events batch")

	return nil
}
