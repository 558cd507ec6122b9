package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/citysieve/internal/config"
	"github.com/couchcryptid/citysieve/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes search requests from a Kafka topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a Kafka consumer for the configured request topic.
// Offsets are committed explicitly through RawMessage.Commit.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaRequestTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
	return &Reader{reader: r, flushInterval: cfg.BatchFlushInterval, logger: logger}
}

// ExtractBatch fetches up to batchSize messages, returning whatever arrived
// once the flush interval elapses. The batch may be empty.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]pipeline.RawMessage, error) {
	batch := make([]pipeline.RawMessage, 0, batchSize)

	fetchCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return batch, nil
			}
			return batch, fmt.Errorf("fetch message: %w", err)
		}
		batch = append(batch, r.mapMessage(msg))
	}
	return batch, nil
}

func (r *Reader) mapMessage(msg kafkago.Message) pipeline.RawMessage {
	raw := mapMessageToRawMessage(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

func mapMessageToRawMessage(msg kafkago.Message) pipeline.RawMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return pipeline.RawMessage{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Headers:   headers,
	}
}
