package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "popsync_queue_depth",
			Help: "Number of actions currently pending in the offline queue",
		},
	)

	ActionsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsync_actions_enqueued_total",
			Help: "Total number of actions enqueued by type",
		},
		[]string{"type"},
	)

	// Flush metrics
	FlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "popsync_flushes_total",
			Help: "Total number of flush passes started",
		},
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "popsync_flush_duration_seconds",
			Help:    "Duration of a full flush pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActionsReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsync_actions_replayed_total",
			Help: "Total number of action replay attempts by type and result",
		},
		[]string{"type", "result"},
	)

	// API client metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popsync_api_requests_total",
			Help: "Total number of backend API requests by method and status",
		},
		[]string{"method", "status"},
	)

	// Reachability metrics
	OnlineState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "popsync_online",
			Help: "Whether the backend is currently reachable (1 = online, 0 = offline)",
		},
	)

	OnlineTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "popsync_online_transitions_total",
			Help: "Total number of offline-to-online transitions observed",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(ActionsEnqueued)
	prometheus.MustRegister(FlushesTotal)
	prometheus.MustRegister(FlushDuration)
	prometheus.MustRegister(ActionsReplayed)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(OnlineState)
	prometheus.MustRegister(OnlineTransitions)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
