// Package metrics provides Prometheus instrumentation for the routing
// core: request counts, latencies, token usage, and spend, all keyed
// by provider and model rather than by the HTTP-facing concepts
// (team, org, API key) a fronting proxy would add on top.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "llmux"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.00625, 0.0125, 0.025, 0.05, 0.1, 0.5,
	1.0, 1.5, 2.0, 2.5, 3.0, 3.5, 4.0, 4.5, 5.0,
	5.5, 6.0, 6.5, 7.0, 7.5, 8.0, 8.5, 9.0, 9.5,
	10.0, 15.0, 20.0, 25.0, 30.0, 60.0, 120.0,
	180.0, 240.0, 300.0,
}

// =============================================================================
// Token and Cost Metrics
// =============================================================================

var (
	// TotalTokens counts total tokens consumed per provider and model.
	TotalTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_tokens",
			Help:      "Total tokens used",
		},
		[]string{"provider", "model"},
	)

	// InputTokens counts input (prompt) tokens per provider and model.
	InputTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_tokens",
			Help:      "Total input tokens",
		},
		[]string{"provider", "model"},
	)

	// OutputTokens counts output (completion) tokens per provider and model.
	OutputTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_tokens",
			Help:      "Total output tokens",
		},
		[]string{"provider", "model"},
	)

	// TotalSpend tracks estimated spend in USD per provider and model.
	TotalSpend = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spend_total",
			Help:      "Total estimated spend in USD",
		},
		[]string{"provider", "model"},
	)
)
