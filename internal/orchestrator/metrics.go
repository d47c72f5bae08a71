package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafcheck_analyses_total",
			Help: "Total number of completed analyses",
		},
		[]string{"path", "outcome"}, // outcome: ok, degraded
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafcheck_fallbacks_total",
			Help: "Total number of switches to on-device analysis",
		},
		[]string{"reason"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leafcheck_stage_duration_seconds",
			Help:    "Duration of each analysis stage in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	probeOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafcheck_probe_total",
			Help: "Connectivity probe outcomes",
		},
		[]string{"result"}, // result: reachable, unreachable
	)

	classifierInits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafcheck_classifier_init_total",
			Help: "Classifier initialization attempts",
		},
		[]string{"model", "status"},
	)
)

// RecordClassifierInit counts a classifier initialization attempt. It
// matches classifier.InitHook.
func RecordClassifierInit(model string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	classifierInits.WithLabelValues(model, status).Inc()
}

func observeStage(s State, start time.Time) {
	stageDuration.WithLabelValues(s.String()).Observe(time.Since(start).Seconds())
}
