package suggestapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/sony/gobreaker"
)

// BreakerSource fails fast once the wrapped source has failed repeatedly.
type BreakerSource struct {
	name  string
	cb    *gobreaker.CircuitBreaker
	inner domain.SuggestionSource
}

// NewBreakerSource trips after failures consecutive errors and stays open
// for timeout before letting a single probe request through.
func NewBreakerSource(name string, inner domain.SuggestionSource, failures uint32, timeout time.Duration, logger *slog.Logger) *BreakerSource {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerSource{
		name:  name,
		cb:    gobreaker.NewCircuitBreaker(settings),
		inner: inner,
	}
}

func (b *BreakerSource) Suggest(ctx context.Context, query string, coord *domain.Coordinate) ([]domain.City, error) {
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	// A superseded fetch is cancelled by its caller; that says nothing about
	// upstream health and must not count towards tripping.
	var canceled error
	result, err := b.cb.Execute(func() (interface{}, error) {
		cities, err := b.inner.Suggest(ctx, query, coord)
		if err != nil && errors.Is(err, context.Canceled) {
			canceled = err
			return nil, nil
		}
		return cities, err
	})
	if canceled != nil {
		return nil, canceled
	}
	if err != nil {
		return nil, fmt.Errorf("%s unavailable: %w", b.name, err)
	}
	cities, ok := result.([]domain.City)
	if !ok {
		return nil, fmt.Errorf("%s returned unexpected result", b.name)
	}
	return cities, nil
}

// CheckReadiness reports an error while the breaker is open.
func (b *BreakerSource) CheckReadiness(_ context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s circuit breaker is open", b.name)
	}
	return nil
}
