// Package scoring implements the deterministic, multi-factor scoring
// function the decision engine ranks candidate providers with: four
// sub-scores in [0, 1], weighted by the active policy, adjusted by a
// confidence multiplier and a health penalty, and clipped to [0, 100].
package scoring

import (
	"sort"
	"time"

	"github.com/arcrelay/gateway/internal/provider"
	"github.com/arcrelay/gateway/internal/telemetry"
	"github.com/arcrelay/gateway/pkg/gateway"
)

// Weights are the per-factor policy weights used to combine sub-scores.
// Callers are expected to have normalized them to sum to 1.0.
type Weights struct {
	Latency      float64
	Cost         float64
	Reliability  float64
	Capability   float64
}

const healthPenaltyPoints = 10.0

// emptyWindowLatencyMS is the pessimistic p95 substituted for a provider
// with no telemetry samples yet, so a brand-new or recently-reset
// provider isn't scored as if it were the fastest candidate available.
const emptyWindowLatencyMS = 5000

// Score computes a ProviderScore for one candidate against one request.
// telemetryStore supplies latency/reliability history and the last
// observed health check; adapter supplies a pure cost estimate.
func Score(p *gateway.Provider, adapter provider.Adapter, req *gateway.InferenceRequest, weights Weights, telemetryStore *telemetry.Store) gateway.ProviderScore {
	latency := latencyScore(p.ID, req, telemetryStore)
	cost := costScore(adapter, req)
	reliability := reliabilityScore(p.ID, telemetryStore)
	capability := capabilityScore(p, req)

	composite := weights.Latency*latency + weights.Cost*cost + weights.Reliability*reliability + weights.Capability*capability

	confidence := confidenceMultiplier(p.ID, telemetryStore)
	composite *= confidence

	penalty := 0.0
	if health := telemetryStore.LastHealth(p.ID); health.Status != "" && health.Status != string(gateway.HealthHealthy) {
		penalty = healthPenaltyPoints
	}

	final := composite*100 - penalty
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	return gateway.ProviderScore{
		ProviderID:       p.ID,
		LatencyScore:     latency,
		CostScore:        cost,
		ReliabilityScore: reliability,
		CapabilityScore:  capability,
		HealthPenalty:    penalty,
		Composite:        final,
		Confidence:       confidence,
	}
}

// latencyScore buckets a provider's observed p95 against the request's
// SLA target (explicit or latency-class default).
func latencyScore(providerID string, req *gateway.InferenceRequest, store *telemetry.Store) float64 {
	target := req.SLATargetMS
	if target <= 0 {
		target = req.Latency.DefaultSLATargetMS()
	}

	metrics := store.Metrics(providerID)
	p95 := metrics.P95LatencyMS
	if metrics.SampleSize == 0 {
		p95 = emptyWindowLatencyMS
	}

	switch {
	case p95 <= target:
		return 1.0
	case p95 <= 2*target:
		return 0.7
	case p95 <= 5*target:
		return 0.3
	default:
		return 0.1
	}
}

// costScore buckets an adapter's pure cost estimate against the
// request's budget; an unset budget is treated as unlimited.
func costScore(adapter provider.Adapter, req *gateway.InferenceRequest) float64 {
	estimate := adapter.EstimateCost(req)
	budget := req.CostBudgetUSD
	if budget <= 0 {
		return 1.0
	}

	switch {
	case estimate <= budget:
		return 1.0
	case estimate <= 2*budget:
		return 0.5
	default:
		return 0.1
	}
}

func reliabilityScore(providerID string, store *telemetry.Store) float64 {
	return store.ReliabilityScore(providerID)
}

func capabilityScore(p *gateway.Provider, req *gateway.InferenceRequest) float64 {
	if len(req.Capabilities) == 0 {
		return 1.0
	}
	matched := 0
	for _, c := range req.Capabilities {
		if p.HasCapability(c) {
			matched++
		}
	}
	return float64(matched) / float64(len(req.Capabilities))
}

// confidenceMultiplier combines a data-age factor (linear degradation
// over 24h) with a sample-size factor, both derived from the telemetry
// window's current state.
func confidenceMultiplier(providerID string, store *telemetry.Store) float64 {
	metrics := store.Metrics(providerID)

	ageFactor := 1.0
	if oldest, ok := store.OldestSampleAt(providerID); ok {
		age := time.Since(oldest)
		ageFactor = 1.0 - age.Hours()/24
		if ageFactor < 0.1 {
			ageFactor = 0.1
		}
	} else {
		ageFactor = 0.1
	}

	var sampleFactor float64
	switch {
	case metrics.SampleSize >= 100:
		sampleFactor = 1.0
	case metrics.SampleSize >= 10:
		sampleFactor = 0.7
	case metrics.SampleSize >= 1:
		sampleFactor = 0.4
	default:
		sampleFactor = 0.1
	}

	return ageFactor * sampleFactor
}

// Ranked sorts scored candidates by composite descending, breaking ties
// by declared provider priority (higher wins), then by lower p95
// latency, then by stable input order.
func Ranked(providers []*gateway.Provider, scores map[string]gateway.ProviderScore, telemetryStore *telemetry.Store) []*gateway.Provider {
	out := make([]*gateway.Provider, len(providers))
	copy(out, providers)

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := scores[out[i].ID], scores[out[j].ID]
		if si.Composite != sj.Composite {
			return si.Composite > sj.Composite
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		pi := telemetryStore.Metrics(out[i].ID).P95LatencyMS
		pj := telemetryStore.Metrics(out[j].ID).P95LatencyMS
		return pi < pj
	})
	return out
}
