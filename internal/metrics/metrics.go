package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels analyses that produced a fitted model.
	OutcomeSuccess = "success"
	// OutcomeNoData labels analyses short-circuited for lack of history.
	OutcomeNoData = "insufficient_data"
	// OutcomeError labels analyses that failed outright.
	OutcomeError = "error"

	// ModeAutomatic labels adjustments applied without a human in the loop.
	ModeAutomatic = "automatic"
	// ModeManual labels adjustments applied by an operator.
	ModeManual = "manual"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maint_opt",
			Name:      "analyses_total",
			Help:      "Total survival analyses run, partitioned by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "maint_opt",
			Name:      "analysis_seconds",
			Help:      "Single-component analysis latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	adjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maint_opt",
			Name:      "adjustments_applied_total",
			Help:      "Interval adjustments applied, partitioned by mode.",
		},
		[]string{"mode"},
	)

	batchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "maint_opt",
			Name:      "batch_seconds",
			Help:      "Scheduled optimization batch duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	batchComponents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "maint_opt",
			Name:      "batch_components",
			Help:      "Number of candidate components in the most recent batch run.",
		},
	)
)

// Register attaches the engine's collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		adjustmentsTotal,
		batchDurationSeconds,
		batchComponents,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records one analysis run.
func ObserveAnalysis(method string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeNoData, OutcomeError:
	default:
		outcome = OutcomeError
	}
	analysesTotal.WithLabelValues(method, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// CountAdjustment records one applied interval change.
func CountAdjustment(automatic bool) {
	mode := ModeManual
	if automatic {
		mode = ModeAutomatic
	}
	adjustmentsTotal.WithLabelValues(mode).Inc()
}

// ObserveBatch records a completed batch run.
func ObserveBatch(duration time.Duration, candidates int) {
	if duration < 0 {
		duration = 0
	}
	batchDurationSeconds.Observe(duration.Seconds())
	batchComponents.Set(float64(candidates))
}
