// Package catalog holds the in-memory city index behind the suggestions
// endpoint.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/couchcryptid/city-search/internal/domain"
)

// Bounding box half-widths, in degrees, around the caller's position.
const (
	maxLatitudeDelta  = 10
	maxLongitudeDelta = 20
)

// DefaultPageSize is the number of cities per page when paginating.
const DefaultPageSize = 5

// Query selects cities from the catalog. Nil fields are not applied.
type Query struct {
	Text      string
	Latitude  *float64
	Longitude *float64
	Page      *int
}

type entry struct {
	city  domain.City
	name  string // folded Name
	ascii string // folded ASCII
}

// Catalog is an immutable, read-only index of cities, safe for concurrent use.
type Catalog struct {
	entries  []entry
	pageSize int
}

// New indexes cities. Later records replace earlier ones with the same ID.
// A non-positive pageSize selects DefaultPageSize.
func New(cities []domain.City, pageSize int) *Catalog {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	byID := make(map[int]int, len(cities))
	entries := make([]entry, 0, len(cities))
	for _, c := range cities {
		e := entry{city: c, name: fold(c.Name), ascii: fold(c.ASCII)}
		if i, ok := byID[c.ID]; ok {
			entries[i] = e
			continue
		}
		byID[c.ID] = len(entries)
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].city, entries[j].city
		if a.Population != b.Population {
			return a.Population > b.Population
		}
		return a.ID < b.ID
	})

	return &Catalog{entries: entries, pageSize: pageSize}
}

// Load reads and indexes the cities file at path.
func Load(path string, pageSize int, logger *slog.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	cities, skipped, err := ReadCities(f)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logger.Warn("skipped malformed catalog rows", "path", path, "skipped", skipped)
	}

	c := New(cities, pageSize)
	logger.Info("catalog loaded", "path", path, "cities", c.Len())
	return c, nil
}

// Len returns the number of indexed cities.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// CheckReadiness reports an error when the catalog holds no cities.
func (c *Catalog) CheckReadiness(_ context.Context) error {
	if c.Len() == 0 {
		return errors.New("catalog is empty")
	}
	return nil
}

// Suggest returns the cities matching q ordered by population, largest first.
func (c *Catalog) Suggest(q Query) domain.Page {
	needle := fold(q.Text)

	matches := make([]domain.City, 0)
	for i := range c.entries {
		e := &c.entries[i]
		if !strings.Contains(e.name, needle) && !strings.Contains(e.ascii, needle) {
			continue
		}
		if q.Latitude != nil && math.Abs(e.city.Latitude-*q.Latitude) > maxLatitudeDelta {
			continue
		}
		if q.Longitude != nil && math.Abs(e.city.Longitude-*q.Longitude) > maxLongitudeDelta {
			continue
		}
		matches = append(matches, e.city)
	}

	if q.Page == nil {
		return domain.Page{Cities: matches}
	}

	page := *q.Page
	total := (len(matches) + c.pageSize - 1) / c.pageSize
	result := domain.Page{Page: &page, TotalPages: &total, Cities: []domain.City{}}
	if page < 0 || page >= total {
		return result
	}
	start := page * c.pageSize
	end := min(start+c.pageSize, len(matches))
	result.Cities = matches[start:end]
	return result
}
