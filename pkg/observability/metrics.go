// Package observability exposes pipeline metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-stage and per-run counters for a pipeline process.
type Metrics struct {
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	Runs          *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with the given
// registerer (pass prometheus.DefaultRegisterer for the process default).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clonepipe",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clonepipe",
			Name:      "stage_failures_total",
			Help:      "Stage failures, labeled by fatality.",
		}, []string{"stage", "fatal"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clonepipe",
			Name:      "runs_total",
			Help:      "Completed runs by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.StageDuration, m.StageFailures, m.Runs)
	}
	return m
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, start time.Time, failed, fatal bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if failed {
		label := "false"
		if fatal {
			label = "true"
		}
		m.StageFailures.WithLabelValues(stage, label).Inc()
	}
}

// ObserveRun records the terminal outcome of a run.
func (m *Metrics) ObserveRun(success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.Runs.WithLabelValues(outcome).Inc()
}
