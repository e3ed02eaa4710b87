//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/city-search/internal/adapter/kafka"
	"github.com/couchcryptid/city-search/internal/app"
	"github.com/couchcryptid/city-search/internal/config"
	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/couchcryptid/city-search/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSearchTopic = "test-city-searches"

type staticSource []domain.City

func (s staticSource) Suggest(context.Context, string, *domain.Coordinate) ([]domain.City, error) {
	return s, nil
}

// TestSearchEventPublished submits a search on a page wired through the
// batching publisher to a real Kafka writer and reads the event back.
func TestSearchEventPublished(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSearchTopic)

	cfg := &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaSearchTopic: testSearchTopic,
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	events := pipeline.New(writer, pipeline.Options{BatchSize: 10, FlushInterval: 100 * time.Millisecond}, discardLogger(), metrics)
	runCtx, stopEvents := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = events.Run(runCtx)
	}()
	t.Cleanup(func() {
		stopEvents()
		<-done
	})

	source := staticSource{
		{ID: 6077243, Name: "Montréal", ASCII: "Montreal"},
		{ID: 6325494, Name: "Québec", ASCII: "Quebec"},
	}
	page := app.NewPage("sess-42", source, events, metrics, discardLogger())
	t.Cleanup(page.Close)

	page.Bar().SetQuery("mont")
	require.NoError(t, page.Bar().Wait(ctx))
	page.Bar().Submit()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSearchTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from search topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "sess-42", string(msg.Key))
	assert.Equal(t, "search_submitted", headers["event_type"])
	_, err = time.Parse(time.RFC3339, headers["submitted_at"])
	assert.NoError(t, err, "submitted_at should be valid RFC3339")

	var event domain.SearchEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "sess-42", event.SessionID)
	assert.Equal(t, "mont", event.Query)
	assert.Equal(t, []int{6077243, 6325494}, event.CityIDs)
	assert.Equal(t, 2, event.Count)
}
