package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "citysearch"

// Metrics holds the Prometheus counters, histograms, and gauges for both
// services.
type Metrics struct {
	// Suggestions API.
	CatalogCities  prometheus.Gauge
	APIQueries     *prometheus.CounterVec // labels: outcome={match,empty,invalid}
	APIQueryResult prometheus.Histogram

	// Suggestion client.
	SuggestRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	SuggestCache       *prometheus.CounterVec // labels: result={hit,miss}
	SuggestAPIDuration prometheus.Histogram

	// Search bar and sessions.
	StaleResponses    prometheus.Counter
	SearchesSubmitted prometheus.Counter
	SessionsActive    prometheus.Gauge

	// Search event publishing.
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
	PublishErrors   prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates all metrics and registers them with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()

	reg.MustRegister(
		m.CatalogCities,
		m.APIQueries,
		m.APIQueryResult,
		m.SuggestRequests,
		m.SuggestCache,
		m.SuggestAPIDuration,
		m.StaleResponses,
		m.SearchesSubmitted,
		m.SessionsActive,
		m.EventsPublished,
		m.EventsDropped,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CatalogCities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_cities",
			Help:      "Number of cities indexed by the catalog.",
		}),
		APIQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_queries_total",
			Help:      "Suggestions endpoint requests by outcome.",
		}, []string{"outcome"}),
		APIQueryResult: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_query_cities",
			Help:      "Number of cities returned per suggestions request.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		SuggestRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggest_requests_total",
			Help:      "Suggestion client requests by outcome.",
		}, []string{"outcome"}),
		SuggestCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggest_cache_total",
			Help:      "Suggestion cache lookups by result.",
		}, []string{"result"}),
		SuggestAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suggest_api_duration_seconds",
			Help:      "Suggestions endpoint round-trip duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		StaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searchbar_stale_responses_total",
			Help:      "Suggestion responses discarded because a newer query was issued.",
		}),
		SearchesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_submitted_total",
			Help:      "Searches submitted from the search bar.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Browser sessions currently holding a page.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_events_published_total",
			Help:      "Search events written to the event topic.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_events_dropped_total",
			Help:      "Search events discarded because the publish queue was full.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_event_publish_errors_total",
			Help:      "Search events that could not be published.",
		}),
	}
}
