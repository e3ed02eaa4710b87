// Package pipeline batches submitted searches and loads them into the event
// sink off the request path.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
)

// ErrQueueFull is returned by Publish when the buffer has no room.
var ErrQueueFull = errors.New("search event queue full")

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	maxAttempts    = 3
	drainTimeout   = 5 * time.Second
)

// BatchLoader writes multiple search events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.SearchEvent) error
}

// Options tune batching. Zero values select the defaults.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

// Publisher queues search events and loads them in batches.
type Publisher struct {
	loader        BatchLoader
	queue         chan domain.SearchEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// New creates a Publisher. Call Run to start loading.
func New(loader BatchLoader, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	return &Publisher{
		loader:        loader,
		queue:         make(chan domain.SearchEvent, opts.QueueSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        logger,
		metrics:       metrics,
	}
}

// Publish enqueues event without blocking.
func (p *Publisher) Publish(_ context.Context, event domain.SearchEvent) error {
	select {
	case p.queue <- event:
		return nil
	default:
		p.metrics.EventsDropped.Inc()
		return ErrQueueFull
	}
}

// Run loads queued events until ctx is cancelled, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("search event publisher started", "batch_size", p.batchSize, "flush_interval", p.flushInterval)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.SearchEvent, 0, p.batchSize)
	for {
		select {
		case <-ctx.Done():
			p.drain(batch)
			p.logger.Info("search event publisher stopped", "reason", ctx.Err())
			return nil
		case event := <-p.queue:
			batch = append(batch, event)
			if len(batch) >= p.batchSize {
				batch = p.flush(ctx, batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				batch = p.flush(ctx, batch)
			}
		}
	}
}

// flush loads batch, retrying with exponential backoff. A batch that still
// fails after maxAttempts is dropped. Returns the emptied batch for reuse.
func (p *Publisher) flush(ctx context.Context, batch []domain.SearchEvent) []domain.SearchEvent {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := p.loader.LoadBatch(ctx, batch)
		if err == nil {
			p.metrics.EventsPublished.Add(float64(len(batch)))
			return batch[:0]
		}
		if ctx.Err() != nil {
			// Left for drain.
			return batch
		}
		p.logger.Error("load search events failed", "error", err, "batch_size", len(batch), "attempt", attempt)
		if attempt == maxAttempts {
			p.metrics.PublishErrors.Add(float64(len(batch)))
			return batch[:0]
		}
		if !sleepWithContext(ctx, backoff) {
			return batch
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

// drain loads the pending batch plus anything still queued using a fresh
// deadline, since the run context is already done.
func (p *Publisher) drain(batch []domain.SearchEvent) {
	for len(p.queue) > 0 {
		batch = append(batch, <-p.queue)
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := p.loader.LoadBatch(ctx, batch); err != nil {
		p.logger.Error("flush search events on shutdown failed", "error", err, "batch_size", len(batch))
		p.metrics.PublishErrors.Add(float64(len(batch)))
		return
	}
	p.metrics.EventsPublished.Add(float64(len(batch)))
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
