package suggestapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cache stores suggestion results by key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.City, bool, error)
	Set(ctx context.Context, key string, cities []domain.City) error
}

// CachedSource wraps a SuggestionSource with a response cache. Concurrent
// lookups for the same key share one upstream call.
type CachedSource struct {
	inner   domain.SuggestionSource
	cache   Cache
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedSource creates a cache decorator around a suggestion source.
func NewCachedSource(inner domain.SuggestionSource, cache Cache, metrics *observability.Metrics, logger *slog.Logger) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedSource) Suggest(ctx context.Context, query string, coord *domain.Coordinate) ([]domain.City, error) {
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	key := cacheKey(query, coord)
	cities, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("suggestion cache read failed", "key", key, "error", err)
	}
	if ok {
		c.metrics.SuggestCache.WithLabelValues("hit").Inc()
		return cities, nil
	}
	c.metrics.SuggestCache.WithLabelValues("miss").Inc()

	// The shared call is detached from every caller; each caller waits on
	// its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		result, err := c.inner.Suggest(shared, query, coord)
		if err != nil {
			return nil, err
		}
		// Only cache non-empty results so that a city added upstream shows up
		// without waiting for eviction.
		if len(result) > 0 {
			if err := c.cache.Set(shared, key, result); err != nil {
				c.logger.Warn("suggestion cache write failed", "key", key, "error", err)
			}
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers sharing the call each get their own slice.
		return append([]domain.City{}, res.Val.([]domain.City)...), nil //nolint:forcetypeassert // only []domain.City is stored
	}
}

func cacheKey(query string, coord *domain.Coordinate) string {
	q := strings.ToLower(query)
	if coord == nil {
		return fmt.Sprintf("suggest:%s|-", q)
	}
	return fmt.Sprintf("suggest:%s|%.6f,%.6f", q, coord.Latitude, coord.Longitude)
}

// LRUCache is a thread-safe in-memory suggestion cache evicting the least
// recently used key.
type LRUCache struct {
	entries *lru.Cache[string, []domain.City]
}

// NewLRUCache creates an LRU cache holding at most maxEntries results. A
// non-positive maxEntries holds one.
func NewLRUCache(maxEntries int) *LRUCache {
	entries, _ := lru.New[string, []domain.City](max(maxEntries, 1)) // only fails for size <= 0
	return &LRUCache{entries: entries}
}

func (c *LRUCache) Get(_ context.Context, key string) ([]domain.City, bool, error) {
	cities, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return clone(cities), true, nil
}

func (c *LRUCache) Set(_ context.Context, key string, cities []domain.City) error {
	c.entries.Add(key, clone(cities))
	return nil
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

func clone(cities []domain.City) []domain.City {
	return append([]domain.City(nil), cities...)
}
