package suggestapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, observability.NewMetricsForTesting(), testLogger())
}

func TestClient_Suggest_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/suggestions", r.URL.Path)
		assert.Equal(t, "q=mont&latitude=45.5&longitude=-73.6&page=0", r.URL.RawQuery)

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"cities":[{"id":6077243,"name":"Montréal","ascii":"Montreal","population":3268513}],"page":0,"totalNumberOfPages":1}`))
	}))
	defer srv.Close()

	cities, err := testClient(srv.URL).Suggest(context.Background(), "Mont", &domain.Coordinate{Latitude: 45.5, Longitude: -73.6})
	require.NoError(t, err)

	require.Len(t, cities, 1)
	assert.Equal(t, 6077243, cities[0].ID)
	assert.Equal(t, "Montréal", cities[0].Name)
	assert.Equal(t, "Montreal", cities[0].ASCII)
	assert.Equal(t, 3268513, cities[0].Population)
}

func TestClient_Suggest_NoCoordinate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "q=qu%C3%A9&page=0", r.URL.RawQuery)
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"cities":[]}`))
	}))
	defer srv.Close()

	cities, err := testClient(srv.URL).Suggest(context.Background(), "QUÉ", nil)
	require.NoError(t, err)
	assert.NotNil(t, cities)
	assert.Empty(t, cities)
}

func TestClient_Suggest_MissingCities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cities, err := testClient(srv.URL).Suggest(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.City{}, cities)
}

func TestClient_Suggest_EmptyQuerySkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Suggest(context.Background(), "", nil)
	require.ErrorIs(t, err, domain.ErrEmptyQuery)
	assert.Zero(t, calls.Load())
}

func TestClient_Suggest_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"q is required"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Suggest(context.Background(), "mont", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "q is required")
}

func TestClient_Suggest_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"cities":[`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Suggest(context.Background(), "mont", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_Suggest_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond, observability.NewMetricsForTesting(), testLogger())

	_, err := c.Suggest(context.Background(), "mont", nil)
	require.Error(t, err)
}

func TestClient_Suggest_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Suggest(ctx, "mont", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name  string
		query string
		coord *domain.Coordinate
		want  string
	}{
		{"plain", "Toronto", nil, "http://api/suggestions?q=toronto&page=0"},
		{"spaces", "New York", nil, "http://api/suggestions?q=new+york&page=0"},
		{"coordinate", "o", &domain.Coordinate{Latitude: 43.70011, Longitude: -79.4163}, "http://api/suggestions?q=o&latitude=43.70011&longitude=-79.4163&page=0"},
		{"zero coordinate", "o", &domain.Coordinate{}, "http://api/suggestions?q=o&latitude=0&longitude=0&page=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildURL("http://api", tt.query, tt.coord))
		})
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://api:8080/", time.Second, observability.NewMetricsForTesting(), testLogger())
	assert.Equal(t, "http://api:8080", c.baseURL)
}
