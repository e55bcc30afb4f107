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
	hostRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_host_api_requests_total",
		Help: "Outbound device host API requests by operation and result",
	}, []string{"op", "result"})

	hostRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamctl_host_api_request_duration_seconds",
		Help:    "Latency of outbound device host API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// ObserveHostRequest records an outbound host API call.
// result is "ok" or a short error class (unavailable, rejected, upstream_error, bad_response, timeout, canceled).
func ObserveHostRequest(op, result string, duration time.Duration) {
	hostRequestTotal.WithLabelValues(op, result).Inc()
	hostRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}
