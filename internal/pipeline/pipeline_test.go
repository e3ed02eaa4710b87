package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/couchcryptid/city-search/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockLoader struct {
	mu      sync.Mutex
	batches [][]domain.SearchEvent
	calls   int
	failN   int // fail the first failN calls
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.SearchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failN {
		return errors.New("broker unavailable")
	}
	m.batches = append(m.batches, append([]domain.SearchEvent(nil), events...))
	return nil
}

func (m *mockLoader) loaded() []domain.SearchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SearchEvent
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func (m *mockLoader) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, len(m.batches))
	for i, b := range m.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (m *mockLoader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func event(query string) domain.SearchEvent {
	return domain.SearchEvent{SessionID: "sess-1", Query: query, CityIDs: []int{}}
}

func start(t *testing.T, p *pipeline.Publisher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("publisher did not stop")
		}
	}
}

// --- tests ---

func TestPublisher_FlushesFullBatch(t *testing.T) {
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ldr, pipeline.Options{BatchSize: 2, FlushInterval: time.Hour}, slog.Default(), metrics)
	stop := start(t, p)
	defer stop()

	require.NoError(t, p.Publish(t.Context(), event("mont")))
	require.NoError(t, p.Publish(t.Context(), event("que")))

	assert.Eventually(t, func() bool { return len(ldr.loaded()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{2}, ldr.batchSizes())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.EventsPublished), 0)
}

func TestPublisher_FlushesOnInterval(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(ldr, pipeline.Options{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, slog.Default(), observability.NewMetricsForTesting())
	stop := start(t, p)
	defer stop()

	require.NoError(t, p.Publish(t.Context(), event("mont")))

	assert.Eventually(t, func() bool { return len(ldr.loaded()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublisher_PreservesOrder(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(ldr, pipeline.Options{BatchSize: 3, FlushInterval: 20 * time.Millisecond}, slog.Default(), observability.NewMetricsForTesting())
	stop := start(t, p)

	for _, q := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, p.Publish(t.Context(), event(q)))
	}
	stop()

	var queries []string
	for _, e := range ldr.loaded() {
		queries = append(queries, e.Query)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, queries)
}

func TestPublisher_DrainsOnShutdown(t *testing.T) {
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ldr, pipeline.Options{BatchSize: 100, FlushInterval: time.Hour}, slog.Default(), metrics)

	// Queued before Run starts; nothing flushes until shutdown.
	require.NoError(t, p.Publish(t.Context(), event("mont")))
	require.NoError(t, p.Publish(t.Context(), event("que")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	assert.Len(t, ldr.loaded(), 2)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.EventsPublished), 0)
}

func TestPublisher_ContextCancellationWithNothingQueued(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(ldr, pipeline.Options{}, slog.Default(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.callCount())
}

func TestPublisher_QueueFull(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockLoader{}, pipeline.Options{QueueSize: 1}, slog.Default(), metrics)

	require.NoError(t, p.Publish(t.Context(), event("mont")))
	err := p.Publish(t.Context(), event("que"))

	require.ErrorIs(t, err, pipeline.ErrQueueFull)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.EventsDropped), 0)
}

func TestPublisher_RetriesFailedBatch(t *testing.T) {
	ldr := &mockLoader{failN: 1}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ldr, pipeline.Options{BatchSize: 1, FlushInterval: time.Hour}, slog.Default(), metrics)
	stop := start(t, p)
	defer stop()

	require.NoError(t, p.Publish(t.Context(), event("mont")))

	assert.Eventually(t, func() bool { return len(ldr.loaded()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, ldr.callCount())
	assert.Zero(t, testutil.ToFloat64(metrics.PublishErrors))
}

func TestPublisher_DropsBatchAfterMaxAttempts(t *testing.T) {
	ldr := &mockLoader{failN: 3}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ldr, pipeline.Options{BatchSize: 1, FlushInterval: time.Hour}, slog.Default(), metrics)
	stop := start(t, p)
	defer stop()

	require.NoError(t, p.Publish(t.Context(), event("mont")))

	// Three attempts with 200ms and 400ms backoff between them.
	assert.Eventually(t, func() bool { return testutil.ToFloat64(metrics.PublishErrors) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, ldr.callCount())
	assert.Empty(t, ldr.loaded())

	require.NoError(t, p.Publish(t.Context(), event("que")))
	assert.Eventually(t, func() bool { return len(ldr.loaded()) == 1 }, 2*time.Second, 10*time.Millisecond)
}
