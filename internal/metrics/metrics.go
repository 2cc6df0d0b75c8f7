// Package metrics exposes spatialwatch's Prometheus series, following
// the teacher's internal/core/observability/metrics.go pattern:
// package-level collectors, an Init(registerer, enabled) gate behind an
// atomic.Bool, and small Observe*/Inc* helpers that no-op when disabled.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func Init(r prometheus.Registerer, isEnabled bool) {
	enabled.Store(isEnabled)
	if !isEnabled || r == nil {
		return
	}
	initCollectors(r)
}

func Enabled() bool { return enabled.Load() }

var (
	snapshotsCreatedTotal *prometheus.CounterVec
	diffsCreatedTotal     *prometheus.CounterVec
	unchangedTotal        *prometheus.CounterVec
	deletionDiffsTotal    *prometheus.CounterVec

	changeDetectionRunSeconds *prometheus.HistogramVec
	changeDetectionRunsTotal  *prometheus.CounterVec

	qualityCheckRunSeconds *prometheus.HistogramVec
	findingsTotal          *prometheus.CounterVec

	schedulerTickSeconds prometheus.Histogram
	schedulerEligible    prometheus.Gauge
	qualityChecksRunning prometheus.Gauge
	diffEventsPublished  *prometheus.CounterVec

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
)

func initCollectors(r prometheus.Registerer) {
	snapshotsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "spatialwatch_snapshots_created_total", Help: "Snapshots created by the change detector, by dataset and run kind."},
		[]string{"dataset_id", "run_kind"},
	)
	diffsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "spatialwatch_diffs_created_total", Help: "Diffs created by the change detector, by dataset and diff type."},
		[]string{"dataset_id", "diff_type"},
	)
	unchangedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "spatialwatch_unchanged_total", Help: "Features observed with an already-known composite hash, by dataset."},
		[]string{"dataset_id"},
	)
	deletionDiffsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "spatialwatch_deletion_diffs_total", Help: "DELETED diffs emitted by the deletion pass, by dataset."},
		[]string{"dataset_id"},
	)

	changeDetectionRunSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "spatialwatch_change_detection_run_seconds", Help: "Duration of a single dataset's change-detection run.", Buckets: prometheus.ExponentialBuckets(0.05, 2, 14)},
		[]string{"dataset_id", "outcome"},
	)
	changeDetectionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "spatialwatch_change_detection_runs_total", Help: "Change-detection runs by dataset and outcome."},
		[]string{"dataset_id", "outcome"},
	)

	qualityCheckRunSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "spatialwatch_quality_check_run_seconds", Help: "Duration of a quality-check run.", Buckets: prometheus.ExponentialBuckets(0.1, 2, 14)},
		[]string{"dataset_id", "outcome"},
	)
	findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "spatialwatch_findings_total", Help: "Findings written by the spatial test engine, by category and result."},
		[]string{"category", "result"},
	)

	schedulerTickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "spatialwatch_scheduler_tick_seconds", Help: "Duration of one change-detection scheduler tick across all eligible datasets.", Buckets: prometheus.ExponentialBuckets(0.1, 2, 14)},
	)
	schedulerEligible = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "spatialwatch_scheduler_eligible_datasets", Help: "Datasets eligible for change detection on the most recent tick."},
	)
	qualityChecksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "spatialwatch_quality_checks_running", Help: "Quality-check runs currently in the running state."},
	)
	diffEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "spatialwatch_diff_events_published_total", Help: "DiffCreated events published to Kafka, by outcome."},
		[]string{"outcome"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "spatialwatch_http_requests_total", Help: "Total HTTP requests served by the control-surface API."},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "spatialwatch_http_request_duration_seconds", Help: "Duration of control-surface HTTP requests.", Buckets: prometheus.ExponentialBuckets(0.005, 2, 12)},
		[]string{"method", "route", "status"},
	)

	r.MustRegister(
		snapshotsCreatedTotal, diffsCreatedTotal, unchangedTotal, deletionDiffsTotal,
		changeDetectionRunSeconds, changeDetectionRunsTotal,
		qualityCheckRunSeconds, findingsTotal,
		schedulerTickSeconds, schedulerEligible, qualityChecksRunning, diffEventsPublished,
		httpRequestsTotal, httpRequestDurationSeconds,
	)
}

func AddSnapshotsCreated(datasetID, runKind string, n int) {
	if !enabled.Load() || snapshotsCreatedTotal == nil || n <= 0 {
		return
	}
	snapshotsCreatedTotal.WithLabelValues(datasetID, runKind).Add(float64(n))
}

func IncDiffCreated(datasetID, diffType string) {
	if !enabled.Load() || diffsCreatedTotal == nil {
		return
	}
	diffsCreatedTotal.WithLabelValues(datasetID, diffType).Inc()
}

func IncUnchanged(datasetID string) {
	if !enabled.Load() || unchangedTotal == nil {
		return
	}
	unchangedTotal.WithLabelValues(datasetID).Inc()
}

func IncDeletionDiff(datasetID string) {
	if !enabled.Load() || deletionDiffsTotal == nil {
		return
	}
	deletionDiffsTotal.WithLabelValues(datasetID).Inc()
}

func ObserveChangeDetectionRun(datasetID, outcome string, d time.Duration) {
	if !enabled.Load() || changeDetectionRunSeconds == nil {
		return
	}
	changeDetectionRunSeconds.WithLabelValues(datasetID, outcome).Observe(d.Seconds())
	changeDetectionRunsTotal.WithLabelValues(datasetID, outcome).Inc()
}

func ObserveQualityCheckRun(datasetID, outcome string, d time.Duration) {
	if !enabled.Load() || qualityCheckRunSeconds == nil {
		return
	}
	qualityCheckRunSeconds.WithLabelValues(datasetID, outcome).Observe(d.Seconds())
}

func IncFinding(category, result string) {
	if !enabled.Load() || findingsTotal == nil {
		return
	}
	findingsTotal.WithLabelValues(category, result).Inc()
}

func ObserveSchedulerTick(d time.Duration, eligible int) {
	if !enabled.Load() || schedulerTickSeconds == nil {
		return
	}
	schedulerTickSeconds.Observe(d.Seconds())
	schedulerEligible.Set(float64(eligible))
}

func SetQualityChecksRunning(n int) {
	if !enabled.Load() || qualityChecksRunning == nil {
		return
	}
	qualityChecksRunning.Set(float64(n))
}

func IncDiffEventPublished(outcome string) {
	if !enabled.Load() || diffEventsPublished == nil {
		return
	}
	diffEventsPublished.WithLabelValues(outcome).Inc()
}

func ObserveHTTP(method, route, status string, d time.Duration) {
	if !enabled.Load() || httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, status).Observe(d.Seconds())
}
