// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors the Scheduler records: its
// requests and pool health, and the routing engine's decisions. Registered once per process via NewMetrics; pass a
// dedicated *prometheus.Registry in tests to avoid collisions with the
// default global registry.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	PoolHealth       *prometheus.GaugeVec
	FallbackDecisions prometheus.Counter
	DecisionDuration  prometheus.Histogram
}

// NewMetrics constructs and registers the routing core's collectors against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routingcore",
			Name:      "requests_total",
			Help:      "Total requests handled, labelled by routing class and outcome.",
		}, []string{"routing_id", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "routingcore",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"routing_id"}),
		PoolHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "routingcore",
			Name:      "pool_health",
			Help:      "1 if the pool's active pipeline is healthy, 0 otherwise.",
		}, []string{"routing_id"}),
		FallbackDecisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "routingcore",
			Name:      "fallback_decisions_total",
			Help:      "Total decisions that fell back to the max-availability pool.",
		}),
		DecisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "routingcore",
			Name:      "decision_duration_seconds",
			Help:      "Time spent scoring candidates and producing a routing decision.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.PoolHealth, m.FallbackDecisions, m.DecisionDuration)
	return m
}
