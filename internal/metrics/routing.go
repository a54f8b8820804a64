package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Routing Core Metrics
// =============================================================================

var (
	// RoutingDecisions counts routing decisions by provider, policy,
	// model, and cache outcome.
	RoutingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of routing decisions made",
		},
		[]string{"provider", "policy", "model", "cache_hit"},
	)

	// RoutingRequestLatency tracks end-to-end routed-request latency,
	// including admission, decision, and execution.
	RoutingRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_request_latency_seconds",
			Help:      "End-to-end routed request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider", "policy", "success"},
	)

	// AdmissionDecisions counts admission grading outcomes.
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Total number of admission decisions by fallback level",
		},
		[]string{"level"},
	)

	// CircuitBreakerState reports 0=closed, 1=half-open, 2=open per provider.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// BulkheadInFlight reports current in-flight request count per provider.
	BulkheadInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bulkhead_in_flight",
			Help:      "Current in-flight request count per provider bulkhead",
		},
		[]string{"provider"},
	)
)

// CircuitStateValue maps a CircuitState string to the gauge's numeric
// encoding for CircuitBreakerState.
func CircuitStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

const maxModelLabelLen = 64

// SanitizeModelLabel trims a model name to a bounded, Prometheus-safe
// label value so a misbehaving client can't blow up label cardinality
// or smuggle control characters into exported metrics.
func SanitizeModelLabel(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(minInt(len(model), maxModelLabelLen))
	for _, r := range model {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxModelLabelLen {
			break
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
