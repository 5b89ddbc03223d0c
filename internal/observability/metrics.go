package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "matches_total", Help: "Total number of drivers reserved by the matcher"})
	MatchMisses   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "match_misses_total", Help: "Match attempts that found no eligible driver"})
	MatchLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_hailing", Name: "match_latency_seconds", Help: "Match latency seconds"})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hailing", Name: "drivers_online", Help: "Number of online drivers"})

	TripTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "trip_transitions_total", Help: "Committed trip state transitions"},
		[]string{"to"},
	)
	ArchiveErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "archive_errors_total", Help: "Failed trip archive writes"})
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "publish_errors_total", Help: "Failed event publishes"},
		[]string{"stream"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hailing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
