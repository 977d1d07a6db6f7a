// Package metrics declares the Prometheus collectors of the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const prometheusMetricNamespace = "taxi_etl"

var (
	stageLabels = []string{"stage"}

	stageRunsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "stage_runs_total",
			Help:      "Number of stage executions by final status.",
		},
		[]string{"stage", "status"},
	)

	stageFailedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "stage_failed_total",
			Help:      "Number of stage executions that returned a fatal error.",
		},
		stageLabels,
	)

	stageDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a stage execution.",
			Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900},
		},
		stageLabels,
	)

	rowsDroppedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "rows_dropped_total",
			Help:      "Number of raw rows excluded by validation, by reason.",
		},
		[]string{"reason"},
	)

	ingestSourceCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "ingest_source_total",
			Help:      "Number of ingests by the source that produced the raw file.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(stageRunsCounter)
	prometheus.MustRegister(stageFailedCounter)
	prometheus.MustRegister(stageDurationHistogram)
	prometheus.MustRegister(rowsDroppedCounter)
	prometheus.MustRegister(ingestSourceCounter)
}

// ObserveStage records one finished stage
func ObserveStage(stage, status string, d time.Duration, failed bool) {
	stageRunsCounter.WithLabelValues(stage, status).Inc()
	stageDurationHistogram.WithLabelValues(stage).Observe(d.Seconds())
	if failed {
		stageFailedCounter.WithLabelValues(stage).Inc()
	}
}

// AddDropped counts rows dropped for reason
func AddDropped(reason string, n int) {
	if n > 0 {
		rowsDroppedCounter.WithLabelValues(reason).Add(float64(n))
	}
}

// IngestedFrom counts an ingest by its source
func IngestedFrom(source string) {
	ingestSourceCounter.WithLabelValues(source).Inc()
}
