// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_bus_published_total",
		Help: "Total number of viewer events published by topic and backend",
	}, []string{"topic", "backend"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_bus_dropped_total",
		Help: "Total number of viewer event drops by topic and reason",
	}, []string{"topic", "reason"})
)

// IncBusPublished records a delivered event.
func IncBusPublished(topic, backend string) {
	BusPublishedTotal.WithLabelValues(topic, backend).Inc()
}

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(topic, reason).Inc()
}
