//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"

	"github.com/couchcryptid/citysieve/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("citysieve-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// Upstream fakes: every point is land, every area has the same amenities.

type allLand struct{}

func (allLand) ResolveBatch(_ context.Context, points []domain.GeoPoint) ([]bool, error) {
	out := make([]bool, len(points))
	for i := range out {
		out[i] = true
	}
	return out, nil
}

type fixedCounter struct{}

func (fixedCounter) CountAmenities(_ context.Context, p domain.GeoPoint, _ int) (domain.AmenityCounts, error) {
	// Vary by latitude so the ranking is not a tie.
	n := int((p.Lat - 53) * 100)
	return domain.AmenityCounts{
		domain.AmenitySupermarkets: n,
		domain.AmenityPubsBars:     n / 2,
	}, nil
}

type fixedPostcodes struct{}

func (fixedPostcodes) LookupPostcode(_ context.Context, _ domain.GeoPoint) (domain.PostcodeResult, error) {
	return domain.PostcodeResult{Outcode: "M1", PlaceName: "Piccadilly"}, nil
}
