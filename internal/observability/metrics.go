package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the retriever, organized
// by subsystem: API requests, fetch streams, and the merge stage.
type Metrics struct {
	// APIRequestsTotal counts requests to the OpenAlex API, labeled by endpoint.
	APIRequestsTotal *prometheus.CounterVec

	// APIRequestsFailed counts requests that ended in a non-200 status
	// or exhausted their retries, labeled by endpoint.
	APIRequestsFailed *prometheus.CounterVec

	// APIRateLimited counts 429 responses.
	APIRateLimited prometheus.Counter

	// APIRetries counts retry attempts after 429s and transport errors.
	APIRetries prometheus.Counter

	// APIRequestDuration observes request duration in seconds, labeled by endpoint.
	APIRequestDuration *prometheus.HistogramVec

	// PagesFetched counts works pages consumed across all streams.
	PagesFetched prometheus.Counter

	// RowsProjected counts projected rows before merging.
	RowsProjected prometheus.Counter

	// RowsMerged counts distinct works after the merge stage.
	RowsMerged prometheus.Counter

	// EntitiesFailed counts entities whose fetch ended in failure.
	EntitiesFailed prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given
// registerer under the given namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		APIRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total requests issued to the OpenAlex API.",
		}, []string{"endpoint"}),
		APIRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_failed_total",
			Help:      "Requests that returned a non-200 status or exhausted retries.",
		}, []string{"endpoint"}),
		APIRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_rate_limited_total",
			Help:      "HTTP 429 responses received from the OpenAlex API.",
		}),
		APIRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Retry attempts after rate limiting or transport errors.",
		}),
		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "OpenAlex API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		PagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Works pages fetched across all streams.",
		}),
		RowsProjected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_projected_total",
			Help:      "Projected rows produced before cross-entity merging.",
		}),
		RowsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_merged_total",
			Help:      "Distinct works remaining after the merge stage.",
		}),
		EntitiesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_failed_total",
			Help:      "Entities whose fetch ended in failure.",
		}),
	}
}
