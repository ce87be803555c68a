package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeReader struct {
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func batchMessage(t *testing.T, batch ListingBatchMessage) kafka.Message {
	t.Helper()
	value, err := json.Marshal(batch)
	require.NoError(t, err)
	return kafka.Message{Topic: "listing-batches", Key: []byte(batch.BatchID), Value: value, Offset: 7}
}

func TestParseBatch(t *testing.T) {
	msg := &IncomingMessage{
		Key:     "batch-9",
		Value:   []byte(`{"listings":[{"external_id":"a","source_site":"s","make":"Honda"}]}`),
		Headers: map[string]string{"tenant_id": "tenant-1"},
	}

	require.NoError(t, msg.ParseBatch())
	assert.Equal(t, "tenant-1", msg.GetTenantID())
	assert.Equal(t, "batch-9", msg.GetBatchID())
	require.Len(t, msg.Batch.Listings, 1)
	assert.Equal(t, "Honda", msg.Batch.Listings[0].Make)
	assert.Nil(t, msg.Batch.Options)
}

func TestParseBatch_Invalid(t *testing.T) {
	t.Run("not json", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte("nope")}
		assert.Error(t, msg.ParseBatch())
	})

	t.Run("missing tenant", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"batch_id":"b-1","listings":[]}`)}
		assert.Error(t, msg.ParseBatch())
	})
}

func TestConsumer_CommitsOnSuccess(t *testing.T) {
	reader := &fakeReader{}
	var handled *IncomingMessage
	consumer := newConsumer(reader, "listing-batches", testLogger(), func(_ context.Context, msg *IncomingMessage) error {
		handled = msg
		return nil
	})

	consumer.processMessage(context.Background(), batchMessage(t, ListingBatchMessage{BatchID: "b-1", TenantID: "tenant-1"}))

	require.NotNil(t, handled)
	assert.Equal(t, "b-1", handled.GetBatchID())
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_DoesNotCommitOnHandlerError(t *testing.T) {
	reader := &fakeReader{}
	consumer := newConsumer(reader, "listing-batches", testLogger(), func(context.Context, *IncomingMessage) error {
		return errors.New("postgres unavailable")
	})

	consumer.processMessage(context.Background(), batchMessage(t, ListingBatchMessage{BatchID: "b-1", TenantID: "tenant-1"}))

	assert.Empty(t, reader.committed)
}

func TestConsumer_CommitsUnparseableMessage(t *testing.T) {
	reader := &fakeReader{}
	called := false
	consumer := newConsumer(reader, "listing-batches", testLogger(), func(context.Context, *IncomingMessage) error {
		called = true
		return nil
	})

	consumer.processMessage(context.Background(), kafka.Message{Topic: "listing-batches", Value: []byte("{")})

	assert.False(t, called)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_StartStop(t *testing.T) {
	consumer := newConsumer(&fakeReader{}, "listing-batches", testLogger(), func(context.Context, *IncomingMessage) error { return nil })

	assert.False(t, consumer.Health())
	require.NoError(t, consumer.Start(context.Background()))
	assert.True(t, consumer.Health())
	require.NoError(t, consumer.Stop())
	assert.False(t, consumer.Health())
}

func TestProducer_PublishEvents(t *testing.T) {
	writer := &fakeWriter{}
	producer := newProducer(writer, "dedup-events", testLogger())

	events := []*Event{
		{EventType: "listing.duplicate_detected", TenantID: "tenant-1", BatchID: "b-1", Key: "ext-1", Data: json.RawMessage(`{"confidence":100}`)},
		{EventType: "batch.completed", TenantID: "tenant-1", BatchID: "b-1"},
	}
	require.NoError(t, producer.PublishEvents(context.Background(), events))

	require.Len(t, writer.written, 2)
	assert.Equal(t, "ext-1", string(writer.written[0].Key))
	assert.Equal(t, "b-1", string(writer.written[1].Key))
	assert.Equal(t, "dedup-events", writer.written[0].Topic)
	assert.Equal(t, "event_type", writer.written[0].Headers[0].Key)
	assert.Equal(t, "listing.duplicate_detected", string(writer.written[0].Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(writer.written[0].Value, &decoded))
	assert.Equal(t, "tenant-1", decoded.TenantID)
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestProducer_PublishEvents_Empty(t *testing.T) {
	writer := &fakeWriter{}
	producer := newProducer(writer, "dedup-events", testLogger())

	require.NoError(t, producer.PublishEvents(context.Background(), nil))
	assert.Empty(t, writer.written)
}

func TestProducer_PublishEvents_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	producer := newProducer(&fakeWriter{err: boom}, "dedup-events", testLogger())

	err := producer.PublishEvents(context.Background(), []*Event{{EventType: "batch.completed", BatchID: "b-1"}})
	assert.ErrorIs(t, err, boom)
}

func TestCompressionCodec(t *testing.T) {
	assert.Equal(t, kafka.Gzip, compressionCodec("gzip"))
	assert.Equal(t, kafka.Zstd, compressionCodec("zstd"))
	assert.Equal(t, kafka.Snappy, compressionCodec(""))
	assert.Equal(t, kafka.Compression(0), compressionCodec("none"))
}
