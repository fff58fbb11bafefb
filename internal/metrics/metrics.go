package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunecard_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunecard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	UsageAdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunecard_usage_admissions_total",
			Help: "Total admission decisions by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	CardsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunecard_cards_generated_total",
			Help: "Total cards generated, by final status.",
		},
		[]string{"status"},
	)

	CardGenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tunecard_card_generation_duration_seconds",
			Help:    "End-to-end card generation duration in seconds.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UsageAdmissionsTotal,
		CardsGeneratedTotal,
		CardGenerationDuration,
	)
}
