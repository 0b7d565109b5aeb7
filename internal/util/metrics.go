package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AddToCartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "till_add_to_cart_total",
		Help: "Add-to-cart attempts by result",
	}, []string{"result"})

	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "till_checkouts_total",
		Help: "Checkout attempts by result",
	}, []string{"result"})

	ResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "till_resets_total",
		Help: "Transaction reset attempts by result",
	}, []string{"result"})

	StaleResultsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "till_stale_results_discarded_total",
		Help: "Boundary results dropped because the session moved on while they were in flight",
	}, []string{"operation"})

	CartLines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "till_cart_lines",
		Help: "Number of distinct products currently in the cart",
	})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "till_backend_request_duration_seconds",
		Help:    "Latency of calls to the transaction backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "till_events_published_total",
		Help: "Till events published to Kafka",
	}, []string{"event_type"})

	JournalEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "till_journal_events_total",
		Help: "Till events written to the sales journal",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
