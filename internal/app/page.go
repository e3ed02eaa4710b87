// Package app composes the search bar with the confirmed result list.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/couchcryptid/city-search/internal/pipeline"
	"github.com/couchcryptid/city-search/internal/render"
	"github.com/couchcryptid/city-search/internal/searchbar"
)

const publishTimeout = 5 * time.Second

// EventPublisher receives one event per submitted search.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SearchEvent) error
}

// Page is one user's view: a search bar and the results of the last search.
type Page struct {
	id        string
	bar       *searchbar.Bar
	publisher EventPublisher
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu      sync.RWMutex
	results []domain.City
}

// NewPage builds a page whose bar fetches from source. publisher may be nil.
func NewPage(id string, source domain.SuggestionSource, publisher EventPublisher, metrics *observability.Metrics, logger *slog.Logger, opts ...searchbar.Option) *Page {
	p := &Page{
		id:        id,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("session", id),
		results:   []domain.City{},
	}
	opts = append([]searchbar.Option{searchbar.WithMetrics(metrics), searchbar.WithLogger(p.logger)}, opts...)
	p.bar = searchbar.New(source, p.onSubmit, opts...)
	return p
}

// ID returns the page's session id.
func (p *Page) ID() string { return p.id }

// Bar exposes the search bar for input.
func (p *Page) Bar() *searchbar.Bar { return p.bar }

// Results returns a copy of the confirmed results.
func (p *Page) Results() []domain.City {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.City{}, p.results...)
}

// Render writes the full page.
func (p *Page) Render(w io.Writer) error {
	snap := p.bar.Snapshot()
	return render.Page(w, render.View{
		Query:       snap.Query,
		Suggestions: snap.Suggestions,
		Loading:     snap.Loading,
		Results:     p.Results(),
	})
}

// RenderSuggestions writes only the bar's suggestion list.
func (p *Page) RenderSuggestions(w io.Writer) error {
	return render.Suggestions(w, p.bar.Snapshot().Suggestions)
}

// Close stops the bar's outstanding work.
func (p *Page) Close() {
	p.bar.Close()
}

func (p *Page) onSubmit(ctx context.Context, query string, suggestions []domain.City) {
	if suggestions == nil {
		suggestions = []domain.City{}
	}
	p.mu.Lock()
	p.results = suggestions
	p.mu.Unlock()

	if p.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := p.publisher.Publish(ctx, domain.NewSearchEvent(p.id, query, suggestions))
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrQueueFull):
		// Counted as dropped by the publisher.
		p.logger.Warn("search event dropped", "error", err)
	default:
		p.metrics.PublishErrors.Inc()
		p.logger.Error("publish search event", "error", err)
	}
}
