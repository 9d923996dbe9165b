package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	triggerEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketd",
			Subsystem: "dispatcher",
			Name:      "trigger_evaluations_total",
			Help:      "Trigger evaluations by trigger name and result (fired, gated, skipped).",
		}, []string{"trigger", "result"},
	)
	convergeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketd",
			Subsystem: "reconciler",
			Name:      "converge_total",
			Help:      "Converge calls by target process and outcome.",
		}, []string{"target", "outcome"},
	)
	convergeRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketd",
			Subsystem: "reconciler",
			Name:      "converge_retries_total",
			Help:      "Apply retries consumed while converging, per target process.",
		}, []string{"target"},
	)
	recoveryRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketd",
			Subsystem: "dispatcher",
			Name:      "recovery_runs_total",
			Help:      "Number of recovery reconciliation passes executed.",
		},
	)
	currentPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "marketd",
			Subsystem: "calendar",
			Name:      "phase",
			Help:      "Current calendar phase (1 = active phase, 0 = inactive).",
		}, []string{"phase"},
	)
	observedRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "marketd",
			Subsystem: "process",
			Name:      "observed_running",
			Help:      "Last observed state per process (1 running, 0 stopped or unknown).",
		}, []string{"name"},
	)
	desiredRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "marketd",
			Subsystem: "process",
			Name:      "desired_running",
			Help:      "Phase-derived desired state per process (1 running, 0 stopped).",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{triggerEvaluations, convergeOutcomes, convergeRetries, recoveryRuns, currentPhase, observedRunning, desiredRunning}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller wires the route and server.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTriggerEvaluation(trigger, result string) {
	if regOK.Load() {
		triggerEvaluations.WithLabelValues(trigger, result).Inc()
	}
}

func IncConverge(target, outcome string) {
	if regOK.Load() {
		convergeOutcomes.WithLabelValues(target, outcome).Inc()
	}
}

func AddConvergeRetries(target string, n int) {
	if regOK.Load() && n > 0 {
		convergeRetries.WithLabelValues(target).Add(float64(n))
	}
}

func IncRecoveryRun() {
	if regOK.Load() {
		recoveryRuns.Inc()
	}
}

func SetPhase(active string, all []string) {
	if !regOK.Load() {
		return
	}
	for _, p := range all {
		var v float64
		if p == active {
			v = 1
		}
		currentPhase.WithLabelValues(p).Set(v)
	}
}

func SetObservedRunning(name string, running bool) {
	if regOK.Load() {
		var v float64
		if running {
			v = 1
		}
		observedRunning.WithLabelValues(name).Set(v)
	}
}

func SetDesiredRunning(name string, running bool) {
	if regOK.Load() {
		var v float64
		if running {
			v = 1
		}
		desiredRunning.WithLabelValues(name).Set(v)
	}
}
