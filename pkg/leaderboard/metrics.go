package leaderboard

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_collector_runs_total",
			Help: "number of collection runs, sorted by result",
		},
		[]string{"result"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leaderboard_collector_run_duration_seconds",
			Help:    "wall-clock duration of a collection run",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 120, 300},
		},
	)
	lastSuccessfulRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leaderboard_collector_last_successful_run_timestamp_seconds",
			Help: "unix time of the last run that completed without a fatal error",
		},
	)
	dataSourceQueryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leaderboard_collector_data_source_query_failures_total",
			Help: "number of data source or legacy database queries that failed and were skipped",
		},
	)
	windowFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_collector_window_fetches_total",
			Help: "number of metrics API requests, sorted by lookback window and result",
		},
		[]string{"window", "result"},
	)
	entitiesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_collector_entities_skipped_total",
			Help: "number of entities that produced no stored snapshot, sorted by reason",
		},
		[]string{"reason"},
	)
	snapshotsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leaderboard_collector_snapshots_written_total",
			Help: "number of snapshot documents written to storage",
		},
	)
)

const (
	resultSuccess = "success"
	resultFailure = "failure"

	skipReasonNoGroupID   = "no_group_id"
	skipReasonDuplicate   = "duplicate"
	skipReasonNoData      = "no_data"
	skipReasonStoreFailed = "store_failed"
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, lastSuccessfulRun, dataSourceQueryFailures, windowFetches, entitiesSkipped, snapshotsWritten)
}
