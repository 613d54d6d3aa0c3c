package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "relumon"
)

var (
	// CyclesTotal counts completed scheduling cycles
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of monitoring cycles run",
		},
	)

	// CycleDuration measures a full cycle over all clusters
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Monitoring cycle latency in seconds",
			Buckets:   []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// ClusterRuns counts per-cluster iterations by outcome
	ClusterRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_runs_total",
			Help:      "Per-cluster monitoring iterations",
		},
		[]string{"cluster", "status"}, // status: ok/error
	)

	// NoticeJobs counts matched alert rules
	NoticeJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notice_jobs_total",
			Help:      "Alert rules matched per cluster",
		},
		[]string{"cluster"},
	)

	// Notifications counts alert deliveries
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert deliveries by channel and status",
		},
		[]string{"channel", "status"}, // status: sent/failed
	)

	// NodeMetric mirrors selected node statistics
	NodeMetric = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_metric",
			Help:      "Selected node statistics mirrored from INFO",
		},
		[]string{"tag", "cluster", "node_id", "host_port", "metric"},
	)

	// SlowLogsStored counts slow log records merged into history
	SlowLogsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slowlogs_stored_total",
			Help:      "Slow log records merged into the retained history",
		},
		[]string{"cluster"},
	)

	// HTTPRequestDuration measures API handler latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)
