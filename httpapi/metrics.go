package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the counters and histograms the router records against on
// every request and every dispatched job, exposed at GET /metrics.
type metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	jobsDispatched  *prometheus.CounterVec
	singleFlightHit prometheus.Counter
}

// newMetrics builds a private registry rather than registering against
// prometheus.DefaultRegisterer, so running more than one Server in a test
// process never panics on a duplicate-collector registration.
func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finmodel_http_requests_total",
			Help: "HTTP requests served, by route and status class.",
		}, []string{"route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finmodel_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		jobsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finmodel_jobs_dispatched_total",
			Help: "Phase jobs dispatched, by phase.",
		}, []string{"phase"}),
		singleFlightHit: factory.NewCounter(prometheus.CounterOpts{
			Name: "finmodel_single_flight_conflicts_total",
			Help: "Dispatch attempts refused because a non-terminal job already occupies the (run, phase) slot.",
		}),
	}
}

// instrument wraps a route handler, recording its latency and a coarse
// status class (2xx/4xx/5xx) under route for /metrics.
func (m *metrics) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, statusClass(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// Handler exposes the registered metrics for a GET /metrics scrape.
func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
