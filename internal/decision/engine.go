// Package decision implements the decision engine: it composes
// scoring and policy to turn one inference request into a
// RoutingDecision — a primary provider plus an ordered fallback list —
// cached by a content-free request hash so equivalent requests from
// different callers share a decision within the TTL.
package decision

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arcrelay/gateway/internal/policy"
	"github.com/arcrelay/gateway/internal/registry"
	"github.com/arcrelay/gateway/internal/scoring"
	"github.com/arcrelay/gateway/internal/telemetry"
	gwerrors "github.com/arcrelay/gateway/pkg/errors"
	"github.com/arcrelay/gateway/pkg/gateway"
)

// Engine routes requests to providers by composing the registry,
// telemetry store, scoring, and policy manager.
type Engine struct {
	registry  *registry.Registry
	telemetry *telemetry.Store
	policies  *policy.Manager
	cache     *Cache
	inflight  singleflight.Group
}

// New builds a decision engine over the given collaborators.
func New(reg *registry.Registry, tel *telemetry.Store, policies *policy.Manager, cache *Cache) *Engine {
	return &Engine{registry: reg, telemetry: tel, policies: policies, cache: cache}
}

// Route selects a primary provider and ordered fallbacks for request
// under the named policy, applying the policy's own fallback-policy
// chain if the named policy yields no eligible candidates.
func (e *Engine) Route(ctx context.Context, req *gateway.InferenceRequest, policyName string) (gateway.RoutingDecision, error) {
	if err := req.Validate(); err != nil {
		return gateway.RoutingDecision{}, err
	}

	hash := HashRequest(req, policyName)

	if cached, ok := e.cache.Get(hash); ok {
		cached.CacheHit = true
		return cached, nil
	}

	// singleflight collapses concurrent misses for the same hash into
	// one scoring pass; every waiter receives the same decision.
	result, err, _ := e.inflight.Do(hash, func() (interface{}, error) {
		return e.decide(req, policyName, hash)
	})
	if err != nil {
		return gateway.RoutingDecision{}, err
	}
	return result.(gateway.RoutingDecision), nil
}

func (e *Engine) decide(req *gateway.InferenceRequest, policyName, hash string) (gateway.RoutingDecision, error) {
	visited := map[string]bool{}
	decision, err := e.tryPolicy(req, policyName, hash, visited)
	if err != nil {
		return gateway.RoutingDecision{}, err
	}

	e.cache.Set(hash, decision)
	return decision, nil
}

// tryPolicy attempts the named policy, falling through its configured
// fallback-policy chain in order when no candidate survives.
func (e *Engine) tryPolicy(req *gateway.InferenceRequest, policyName, hash string, visited map[string]bool) (gateway.RoutingDecision, error) {
	if visited[policyName] {
		return gateway.RoutingDecision{}, gwerrors.New(gwerrors.KindNoProvidersAvailable, "", "policy fallback chain cycled without a candidate")
	}
	visited[policyName] = true

	pol, ok := e.policies.Get(policyName)
	if !ok {
		pol, ok = e.policies.Get("balanced")
		if !ok {
			return gateway.RoutingDecision{}, gwerrors.New(gwerrors.KindNoProvidersAvailable, "", "no policy available, including default")
		}
	}

	candidates := e.candidates(req)
	if len(candidates) == 0 {
		return e.nextInChain(req, pol, hash, visited)
	}

	scores := make(map[string]gateway.ProviderScore, len(candidates))
	inputs := make(map[string]policy.ScoreInputs, len(candidates))
	weights := pol.ScoringWeights()

	for _, p := range candidates {
		adapter, ok := e.registry.Adapter(p.ID)
		if !ok {
			continue
		}
		score := scoring.Score(p, adapter, req, weights, e.telemetry)
		scores[p.ID] = score
		inputs[p.ID] = policy.ScoreInputs{
			LatencyMS:    e.telemetry.Metrics(p.ID).P95LatencyMS,
			CostEstimate: adapter.EstimateCost(req),
			Reliability:  e.telemetry.ReliabilityScore(p.ID),
		}
	}

	survivingIDs := pol.Apply(scores, inputs)
	if len(survivingIDs) == 0 {
		return e.nextInChain(req, pol, hash, visited)
	}

	var survivors []*gateway.Provider
	for _, id := range survivingIDs {
		if p, ok := e.registry.Provider(id); ok {
			survivors = append(survivors, p)
		}
	}

	ranked := scoring.Ranked(survivors, scores, e.telemetry)

	primary := ranked[0]
	fallbacks := make([]string, 0, len(ranked)-1)
	for _, p := range ranked[1:] {
		fallbacks = append(fallbacks, p.ID)
	}

	return gateway.RoutingDecision{
		Provider:    primary.ID,
		Model:       req.Model,
		Score:       scores[primary.ID],
		Fallbacks:   fallbacks,
		Reason:      reasonFor(pol, scores[primary.ID]),
		CacheHit:    false,
		RequestHash: hash,
		DecidedAt:   time.Now(),
	}, nil
}

func (e *Engine) nextInChain(req *gateway.InferenceRequest, pol *policy.Policy, hash string, visited map[string]bool) (gateway.RoutingDecision, error) {
	for _, next := range pol.Fallbacks {
		if visited[next] {
			continue
		}
		decision, err := e.tryPolicy(req, next, hash, visited)
		if err == nil {
			return decision, nil
		}
	}
	return gateway.RoutingDecision{}, gwerrors.New(gwerrors.KindNoProvidersAvailable, "", "no providers survived policy or its fallback chain")
}

// candidates narrows the registry's active providers to those
// declaring every capability the request requires and serving the
// requested model, when specified.
func (e *Engine) candidates(req *gateway.InferenceRequest) []*gateway.Provider {
	active := e.registry.ActiveProviders()

	var out []*gateway.Provider
	for _, p := range active {
		if req.Model != "" {
			if _, ok := p.ModelByName(req.Model); !ok {
				continue
			}
		}
		matches := true
		for _, capability := range req.Capabilities {
			if !p.HasCapability(capability) {
				matches = false
				break
			}
		}
		if matches {
			out = append(out, p)
		}
	}
	return out
}

func reasonFor(pol *policy.Policy, score gateway.ProviderScore) string {
	reason := fmt.Sprintf("selected via %s (composite=%.1f)", pol.Name, score.Composite)
	if score.HealthPenalty > 0 {
		reason += fmt.Sprintf(", health penalty -%.1f", score.HealthPenalty)
	}
	return reason
}
