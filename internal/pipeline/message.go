package pipeline

import (
	"context"
	"time"
)

// RawMessage is a message read from the request topic, along with its Kafka
// position and an optional commit callback.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string
	Commit    func(ctx context.Context) error
}

// OutputMessage is a serialized message ready for the result topic.
type OutputMessage struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
