// Package suggestapi is the front-end's client for the suggestions endpoint,
// together with the cache and circuit-breaker decorators wrapped around it.
package suggestapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
	json "github.com/goccy/go-json"
)

// Client implements domain.SuggestionSource against the suggestions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a suggestions client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// Suggest issues one GET for the lower-cased query and returns the cities in
// the response. Pagination is fixed at the first page.
func (c *Client) Suggest(ctx context.Context, query string, coord *domain.Coordinate) ([]domain.City, error) {
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	start := time.Now()
	cities, err := c.doRequest(ctx, buildURL(c.baseURL, query, coord))
	c.metrics.SuggestAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.SuggestRequests.WithLabelValues("error").Inc()
		c.logger.Warn("suggestion request failed", "q", query, "error", err)
		return nil, err
	case len(cities) == 0:
		c.metrics.SuggestRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.SuggestRequests.WithLabelValues("success").Inc()
	}
	c.logger.Debug("suggestions fetched", "q", query, "count", len(cities), "duration", time.Since(start))
	return cities, nil
}

// buildURL keeps the parameter order q, latitude, longitude, page.
func buildURL(baseURL, query string, coord *domain.Coordinate) string {
	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("/suggestions?q=")
	b.WriteString(url.QueryEscape(strings.ToLower(query)))
	if coord != nil {
		b.WriteString("&latitude=")
		b.WriteString(strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
		b.WriteString("&longitude=")
		b.WriteString(strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	}
	b.WriteString("&page=0")
	return b.String()
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.City, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suggestions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("suggestions API error: status %d: %s", resp.StatusCode, body)
	}

	var page domain.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if page.Cities == nil {
		return []domain.City{}, nil
	}
	return page.Cities, nil
}
