package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysisRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "biosense_analysis_runs_total",
			Help: "Total number of daily analysis runs",
		},
	)

	analysisFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosense_analysis_failures_total",
			Help: "Total number of failed sub-analyses, by stage",
		},
		[]string{"stage"},
	)

	anomaliesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosense_anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"biomarker", "priority"},
	)

	alertsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "biosense_alerts_created_total",
			Help: "Total number of alerts created after deduplication",
		},
	)

	analysisDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "biosense_analysis_duration_seconds",
			Help:    "Duration of daily analysis runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
