package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carpool_matching"

var (
	MatchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "match_requests_total", Help: "Total number of match searches"})
	CandidatesScored   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "candidates_scored_total", Help: "Candidate trips scored"})
	MatchesReturned    = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "matches_returned",
		Help:      "Matches returned per search",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})
	CompatibilityScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "compatibility_score",
		Help:      "Distribution of returned compatibility scores",
		Buckets:   prometheus.LinearBuckets(50, 5, 11),
	})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Match latency seconds"})

	TripsPublished = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "trips_published_total", Help: "Trips published by drivers"})
	BookingsTotal  = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bookings_total", Help: "Booking state transitions"},
		[]string{"status"},
	)
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Notifications created"},
		[]string{"type"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
