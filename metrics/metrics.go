package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_search_requests_total",
			Help: "Total number of search calls by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lostfound_search_duration_seconds",
			Help:    "Duration of search calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	SearchCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lostfound_search_candidates",
			Help:    "Number of candidates scored per search",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	CorruptFingerprints = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_corrupt_fingerprints_total",
			Help: "Stored fingerprints that could not be compared and scored 0",
		},
	)

	QueryFingerprintCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_query_fingerprint_cache_total",
			Help: "Query image fingerprint cache lookups by result",
		},
		[]string{"result"},
	)

	BackfillReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_backfill_reports_total",
			Help: "Reports processed by the fingerprint backfill by result",
		},
		[]string{"result"},
	)
)
