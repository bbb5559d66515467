// Package telemetry exposes Prometheus metrics for the recommendation
// service: request traffic, experiment exposures and conversions, resolver
// latency, and tracker queue health.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts HTTP requests by method, path pattern and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotrial_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration observes HTTP request latency by path pattern.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gotrial_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RecommendationsServed counts recommendation responses by feature and
	// how they were resolved (experiment type or "default").
	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotrial_recommendations_served_total",
			Help: "Total recommendation responses served, by feature and resolution kind.",
		},
		[]string{"feature", "kind"},
	)

	// ExperimentExposures counts recorded exposures by experiment name.
	ExperimentExposures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotrial_experiment_exposures_total",
			Help: "Total experiment exposures recorded.",
		},
		[]string{"experiment"},
	)

	// ExperimentConversions counts recorded conversions by experiment name.
	ExperimentConversions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotrial_experiment_conversions_total",
			Help: "Total experiment conversions recorded.",
		},
		[]string{"experiment"},
	)

	// ResolverDuration observes item resolution latency by resolver type.
	ResolverDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gotrial_resolver_duration_seconds",
			Help:    "Item resolver latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// TrackerDroppedEvents counts exposure events dropped because the
	// tracker queue was full.
	TrackerDroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gotrial_tracker_dropped_events_total",
			Help: "Total exposure events dropped due to a full tracker queue.",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusWriter captures the response status code for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency. The path label uses the
// route pattern supplied by the router, not the raw URL, to keep
// cardinality bounded.
func Middleware(pattern func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)

			path := pattern(r)
			if path == "" {
				path = "unmatched"
			}
			HTTPRequests.WithLabelValues(r.Method, path, http.StatusText(sw.status)).Inc()
			HTTPDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// ObserveResolver records one resolver call's latency.
func ObserveResolver(resolverType string, start time.Time) {
	ResolverDuration.WithLabelValues(resolverType).Observe(time.Since(start).Seconds())
}
