// Package location provides the LocationSource implementations the web
// front-end mounts a search bar with.
package location

import (
	"context"
	"net/url"
	"strconv"

	"github.com/couchcryptid/city-search/internal/domain"
)

// Fixed yields the same coordinate on every call.
type Fixed domain.Coordinate

func (f Fixed) Locate(ctx context.Context) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, err
	}
	return domain.Coordinate(f), nil
}

type none struct{}

func (none) Locate(context.Context) (domain.Coordinate, error) {
	return domain.Coordinate{}, domain.ErrLocationUnavailable
}

// None never has a position.
var None domain.LocationSource = none{}

// Configured returns Fixed(*coord), or None when coord is nil.
func Configured(coord *domain.Coordinate) domain.LocationSource {
	if coord == nil {
		return None
	}
	return Fixed(*coord)
}

// FromRequest reads latitude and longitude hints from values. When either is
// missing, unparsable or out of range, the returned source defers to
// fallback.
func FromRequest(values url.Values, fallback domain.LocationSource) domain.LocationSource {
	if fallback == nil {
		fallback = None
	}
	lat, err := strconv.ParseFloat(values.Get("latitude"), 64)
	if err != nil {
		return fallback
	}
	lon, err := strconv.ParseFloat(values.Get("longitude"), 64)
	if err != nil {
		return fallback
	}
	coord := domain.Coordinate{Latitude: lat, Longitude: lon}
	if !coord.Valid() {
		return fallback
	}
	return Fixed(coord)
}
