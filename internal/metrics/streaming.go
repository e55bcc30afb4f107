// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionTotal tracks how quality transitions settle.
	TransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_quality_transition_total",
		Help: "Total number of settled quality transitions by target, result and reason",
	}, []string{"target", "result", "reason"})

	// TransitionDuration tracks the time from switch request to settle.
	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamctl_quality_transition_duration_seconds",
		Help:    "Time from quality switch request until the transition settled",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30},
	}, []string{"target", "result"})

	// TransitionRetries counts readiness retries (at most one per transition).
	TransitionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_quality_transition_retries_total",
		Help: "Total number of readiness retries issued by the transition controller",
	}, []string{"target"})

	// TransitionSuperseded counts transitions abandoned for a newer request.
	TransitionSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamctl_quality_transition_superseded_total",
		Help: "Total number of in-flight transitions superseded by a newer switch request",
	})

	// StaleCallbacks counts async completions discarded by generation arbitration.
	StaleCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_stale_callbacks_total",
		Help: "Async completions ignored because their generation or phase no longer matched",
	}, []string{"source"})

	// ReadinessDuration tracks how long readiness polls ran.
	ReadinessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamctl_readiness_poll_duration_seconds",
		Help:    "Duration of readiness poll loops",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30},
	})

	// ReadinessOutcome tracks readiness poll outcomes.
	ReadinessOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_readiness_poll_outcome_total",
		Help: "Readiness poll loop outcomes (ready, timeout, cancelled)",
	}, []string{"outcome"})

	// RevertTotal tracks teardown revert commands.
	RevertTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_teardown_revert_total",
		Help: "Teardown revert-to-baseline commands by result",
	}, []string{"result"})

	// ActiveViewers tracks mounted viewer sessions.
	ActiveViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamctl_active_viewers",
		Help: "Number of currently mounted viewer sessions",
	})
)

// ObserveTransition records a settled transition.
func ObserveTransition(target string, success bool, reason string, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	if reason == "" {
		reason = "none"
	}
	TransitionTotal.WithLabelValues(target, result, reason).Inc()
	TransitionDuration.WithLabelValues(target, result).Observe(duration.Seconds())
}

// IncTransitionRetry records a readiness retry.
func IncTransitionRetry(target string) {
	TransitionRetries.WithLabelValues(target).Inc()
}

// IncTransitionSuperseded records a superseded transition.
func IncTransitionSuperseded() {
	TransitionSuperseded.Inc()
}

// IncStaleCallback records a discarded async completion.
func IncStaleCallback(source string) {
	StaleCallbacks.WithLabelValues(source).Inc()
}

// ObserveReadiness records the duration and outcome of a readiness poll loop.
func ObserveReadiness(outcome string, duration time.Duration) {
	ReadinessDuration.Observe(duration.Seconds())
	ReadinessOutcome.WithLabelValues(outcome).Inc()
}

// IncRevert records a teardown revert outcome.
func IncRevert(result string) {
	RevertTotal.WithLabelValues(result).Inc()
}
