package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feetracker"

var (
	once sync.Once

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Fee polling cycles by result",
		},
		[]string{"result"},
	)

	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of upstream fee_stats requests",
			Buckets:   prometheus.DefBuckets,
		},
	)

	HistorySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Snapshots currently retained in the history store",
		},
	)

	InsightsDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "insights",
			Name:      "degraded_total",
			Help:      "Recomputes that kept the previous insights because inputs could not be parsed",
		},
	)

	ArchiveErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Snapshots that failed to archive",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"route", "method"},
	)
)

// Poll results.
const (
	ResultSuccess      = "success"
	ResultNetworkError = "network_error"
	ResultParseError   = "parse_error"
	ResultError        = "error"
)

// Register adds every collector to the default registry. Safe to call repeatedly.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			PollsTotal,
			PollDuration,
			HistorySize,
			InsightsDegraded,
			ArchiveErrors,
			HTTPRequests,
			HTTPDuration,
		)
	})
}
