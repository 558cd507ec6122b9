package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/couchcryptid/citysieve/internal/config"
	"github.com/couchcryptid/citysieve/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces search run events to a Kafka topic.
// It implements pipeline.BatchLoader and pipeline.EventPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured result topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaResultTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes messages to the result topic in a single
// WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, msgs []pipeline.OutputMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafkago.Message, len(msgs))
	for i := range msgs {
		out[i] = toKafkaMessage(msgs[i])
	}
	if err := w.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(out), err)
	}
	w.logger.Debug("published search runs", "topic", w.writer.Topic, "count", len(out))
	return nil
}

// PublishSearchRun publishes one search run event.
func (w *Writer) PublishSearchRun(ctx context.Context, event pipeline.SearchRunEvent) error {
	msg, err := pipeline.EncodeSearchRunEvent(event)
	if err != nil {
		return err
	}
	return w.LoadBatch(ctx, []pipeline.OutputMessage{msg})
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// toKafkaMessage converts an output message, ordering headers by key.
func toKafkaMessage(msg pipeline.OutputMessage) kafkago.Message {
	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, len(keys))
	for i, k := range keys {
		headers[i] = kafkago.Header{Key: k, Value: []byte(msg.Headers[k])}
	}
	return kafkago.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}
