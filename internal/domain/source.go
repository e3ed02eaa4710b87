package domain

import (
	"context"
	"errors"
)

var (
	// ErrEmptyQuery is returned when a suggestion lookup is attempted with no text.
	ErrEmptyQuery = errors.New("empty query")

	// ErrLocationUnavailable is returned by a LocationSource that has no position.
	ErrLocationUnavailable = errors.New("location unavailable")
)

// SuggestionSource returns cities whose names match query, biased towards
// coord when it is non-nil.
type SuggestionSource interface {
	Suggest(ctx context.Context, query string, coord *Coordinate) ([]City, error)
}

// LocationSource yields the user's position. Implementations may block and
// must honour ctx.
type LocationSource interface {
	Locate(ctx context.Context) (Coordinate, error)
}
