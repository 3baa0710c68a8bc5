// Package metrics exposes Prometheus collectors for worker runs, steps, and
// tool invocations. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voicepilot"

// Metrics groups the collectors reported by the worker and executor.
type Metrics struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runs         prometheus.Counter
	runsActive   prometheus.Gauge
	tools        *prometheus.CounterVec
	rejected     prometheus.Counter
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name. Other registration errors
// panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		steps: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "steps_total",
			Help:      "Log entries interpreted by worker runs.",
		}, []string{"kind", "status"})),
		stepDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "step_duration_seconds",
			Help:      "Time spent interpreting one log entry.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"})),
		runs: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "runs_total",
			Help:      "Worker runs started.",
		})),
		runsActive: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "runs_active",
			Help:      "Worker runs currently executing.",
		})),
		tools: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "invocations_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "status"})),
		rejected: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "rejected_total",
			Help:      "Tasks the executor refused because a lane was full or it was stopped.",
		})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveStep records one interpreted entry.
func (m *Metrics) ObserveStep(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(kind, status).Inc()
	m.stepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RunStarted marks a run as active.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.runsActive.Inc()
}

// RunEnded marks a run as no longer active.
func (m *Metrics) RunEnded() {
	if m == nil {
		return
	}
	m.runsActive.Dec()
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool string, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.tools.WithLabelValues(tool, status).Inc()
}

// IncRejected counts a task the executor would not accept.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
