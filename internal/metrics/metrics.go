package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the gateway
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)

	VerificationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_requests_total",
			Help: "Total number of verification requests by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	VerificationCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_cache_hits_total",
			Help: "Total number of verification cache hits by cache layer",
		},
		[]string{"layer"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of vehicle-data aggregator calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 65},
		},
		[]string{"service", "outcome"},
	)

	PersistenceWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_persistence_warnings_total",
			Help: "Total number of swallowed cache or mirror write failures",
		},
		[]string{"target"},
	)
)

// Register registers all Prometheus metrics
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		VerificationRequestsTotal,
		VerificationCacheHitsTotal,
		UpstreamRequestDuration,
		PersistenceWarningsTotal,
	)
}
