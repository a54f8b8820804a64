// Package manager implements the routing manager: the top-level
// orchestrator that takes admission, the decision engine, and
// execute-with-fallback and turns one inference request into a result,
// recording telemetry and exposing status/ranking introspection.
package manager

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/arcrelay/gateway/internal/admission"
	"github.com/arcrelay/gateway/internal/decision"
	"github.com/arcrelay/gateway/internal/metrics"
	"github.com/arcrelay/gateway/internal/observability"
	"github.com/arcrelay/gateway/internal/policy"
	"github.com/arcrelay/gateway/internal/registry"
	"github.com/arcrelay/gateway/internal/resilience"
	"github.com/arcrelay/gateway/internal/scoring"
	"github.com/arcrelay/gateway/internal/statestore"
	"github.com/arcrelay/gateway/internal/telemetry"
	gwerrors "github.com/arcrelay/gateway/pkg/errors"
	"github.com/arcrelay/gateway/pkg/gateway"
)

// Manager is the routing subsystem's single entry point.
type Manager struct {
	registry  *registry.Registry
	telemetry *telemetry.Store
	admission *admission.Controller
	decision  *decision.Engine
	policies  *policy.Manager
	store     statestore.Store
	logger    *observability.Logger

	mu        sync.Mutex
	breakers  map[string]*resilience.CircuitBreaker
	bulkheads map[string]*resilience.Bulkhead

	cleanupStop chan struct{}
}

// New wires a Manager over its collaborators. store backs the circuit
// breakers and bulkheads created lazily per provider. logger redacts
// credentials and other sensitive values before they reach log output,
// since upstream error bodies surfaced through the fallback chain can
// carry an Authorization header or API key verbatim.
func New(
	reg *registry.Registry,
	tel *telemetry.Store,
	adm *admission.Controller,
	dec *decision.Engine,
	policies *policy.Manager,
	store statestore.Store,
	logger *observability.Logger,
) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.LoggerConfig{JSONFormat: true}, observability.NewRedactor())
	}
	return &Manager{
		registry:  reg,
		telemetry: tel,
		admission: adm,
		decision:  dec,
		policies:  policies,
		store:     store,
		logger:    logger,
		breakers:  make(map[string]*resilience.CircuitBreaker),
		bulkheads: make(map[string]*resilience.Bulkhead),
	}
}

// Start launches the background decision-cache cleanup loop. Cancel ctx
// to stop it.
func (m *Manager) Start(ctx context.Context) {
	go m.cacheCleanupLoop(ctx)
}

func (m *Manager) cacheCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The decision cache expires entries lazily via go-cache's own
			// janitor; this loop exists as the hook the original system
			// used for a periodic sweep and currently has nothing to add.
		}
	}
}

func (m *Manager) breakerFor(providerID string) *resilience.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[providerID]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(providerID, m.store, resilience.DefaultCircuitBreakerConfig(), m.logger.Slog())
	m.breakers[providerID] = cb
	return cb
}

func (m *Manager) bulkheadFor(providerID string) *resilience.Bulkhead {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bh, ok := m.bulkheads[providerID]; ok {
		return bh
	}
	bh := resilience.NewBulkhead(providerID, m.store, resilience.DefaultBulkheadMax, m.logger.Slog())
	m.bulkheads[providerID] = bh
	return bh
}

// RouteRequest is the manager's single entry point: admission, decision,
// execute-with-fallback, telemetry recording, and metrics emission.
func (m *Manager) RouteRequest(ctx context.Context, req *gateway.InferenceRequest, policyName string) (*gateway.InferenceResult, error) {
	start := time.Now()

	admitted, err := m.admission.Check(ctx, req.ClientKey, req.RequestPath)
	if err != nil {
		return nil, err
	}

	metrics.AdmissionDecisions.WithLabelValues(string(admitted.Level)).Inc()

	switch admitted.Level {
	case gateway.LevelDeny:
		return nil, admission.RateLimitExceededError(admitted)
	case gateway.LevelEmergency:
		return m.emergencyRoute(ctx, req, admitted)
	case gateway.LevelCheapModel:
		req.Model = admitted.CheapModel
	}

	dec, err := m.decision.Route(ctx, req, policyName)
	if err != nil {
		return nil, err
	}

	result, usedProvider, err := m.executeWithFallback(ctx, req, dec)

	latencyMS := time.Since(start).Milliseconds()
	success := err == nil && result != nil && result.Success
	if success {
		if _, tokenErr := m.admission.CheckTokenBudget(ctx, req.ClientKey, int64(result.Usage.TotalTokens)); tokenErr != nil {
			m.logger.RedactedWarn("token budget debit failed", "error", tokenErr)
		}
		m.recordUsageMetrics(usedProvider, req.Model, result)
	}

	m.logger.Info("routing decision executed",
		"provider", dec.Provider,
		"policy", policyName,
		"latency_ms", latencyMS,
		"success", success,
		"cache_hit", dec.CacheHit,
	)
	if err != nil {
		// err may wrap an upstream error body (auth headers, API keys) via
		// the adapter's mapped GatewayError message; redact before logging.
		m.logger.RedactedError("routing request failed",
			"provider", usedProvider,
			"policy", policyName,
			"error", err,
		)
	}

	metrics.RoutingDecisions.WithLabelValues(dec.Provider, policyName, metrics.SanitizeModelLabel(req.Model), strconv.FormatBool(dec.CacheHit)).Inc()
	metrics.RoutingRequestLatency.WithLabelValues(dec.Provider, policyName, strconv.FormatBool(success)).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordUsageMetrics exports token and spend counters for one successful
// invocation. Spend is computed from the registry's own per-model pricing
// against the actual usage the adapter returned, rather than trusted from
// the upstream response, since not every backend reports spend.
func (m *Manager) recordUsageMetrics(providerID, model string, result *gateway.InferenceResult) {
	modelLabel := metrics.SanitizeModelLabel(model)
	if result.Usage.InputTokens > 0 {
		metrics.InputTokens.WithLabelValues(providerID, modelLabel).Add(float64(result.Usage.InputTokens))
	}
	if result.Usage.OutputTokens > 0 {
		metrics.OutputTokens.WithLabelValues(providerID, modelLabel).Add(float64(result.Usage.OutputTokens))
	}
	if result.Usage.TotalTokens > 0 {
		metrics.TotalTokens.WithLabelValues(providerID, modelLabel).Add(float64(result.Usage.TotalTokens))
	}

	provider, ok := m.registry.Provider(providerID)
	if !ok {
		return
	}
	spec, ok := provider.ModelByName(model)
	if !ok {
		return
	}
	cost := float64(result.Usage.InputTokens)*spec.CostPerTokenIn + float64(result.Usage.OutputTokens)*spec.CostPerTokenOut
	if cost > 0 {
		metrics.TotalSpend.WithLabelValues(providerID, modelLabel).Add(cost)
	}
}

// emergencyRoute bypasses the decision engine entirely, serving only
// the health/auth-capable cheap-model path.
func (m *Manager) emergencyRoute(ctx context.Context, req *gateway.InferenceRequest, d admission.Decision) (*gateway.InferenceResult, error) {
	req.Model = d.CheapModel
	candidates := m.registry.ProvidersByCapability("chat")
	if len(candidates) == 0 {
		return nil, gwerrors.New(gwerrors.KindNoProvidersAvailable, "", "no emergency-capable provider available")
	}

	emergencyDecision := gateway.RoutingDecision{
		Provider:  candidates[0].ID,
		Model:     req.Model,
		Fallbacks: providerIDs(candidates[1:]),
		Reason:    "emergency admission bypass",
	}

	result, _, err := m.executeWithFallback(ctx, req, emergencyDecision)
	return result, err
}

func providerIDs(providers []*gateway.Provider) []string {
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.ID)
	}
	return out
}

// executeWithFallback iterates primary+fallbacks through the circuit
// breaker and bulkhead guards per §4.10, returning the first success
// and the id of the provider that produced it (or the last attempted
// provider on overall failure, for telemetry attribution).
func (m *Manager) executeWithFallback(ctx context.Context, req *gateway.InferenceRequest, dec gateway.RoutingDecision) (*gateway.InferenceResult, string, error) {
	candidates := append([]string{dec.Provider}, dec.Fallbacks...)

	var lastErr error
	var lastProvider string

	for _, providerID := range candidates {
		lastProvider = providerID
		adapter, ok := m.registry.Adapter(providerID)
		if !ok {
			continue
		}

		breaker := m.breakerFor(providerID)
		bulkhead := m.bulkheadFor(providerID)

		if err := breaker.Allow(ctx); err != nil {
			lastErr = err
			continue
		}
		if err := bulkhead.TryEnter(ctx); err != nil {
			lastErr = err
			continue
		}
		metrics.BulkheadInFlight.WithLabelValues(providerID).Set(float64(bulkhead.Current(ctx)))

		callStart := time.Now()
		result, invokeErr := adapter.Invoke(ctx, req)
		bulkhead.Exit(ctx)
		metrics.BulkheadInFlight.WithLabelValues(providerID).Set(float64(bulkhead.Current(ctx)))
		metrics.CircuitBreakerState.WithLabelValues(providerID).Set(metrics.CircuitStateValue(string(breaker.State(ctx))))

		if ctx.Err() != nil {
			// Cancelled: no outcome recorded, request fails as Cancelled.
			return nil, lastProvider, gwerrors.Wrap(gwerrors.KindCancelled, providerID, "request cancelled", ctx.Err())
		}

		if invokeErr == nil {
			// Record this candidate's own call latency, not the cumulative
			// time since admission/decision/earlier fallback attempts, so
			// the telemetry store and its downstream reliability scoring
			// reflect this provider's actual performance.
			m.telemetry.RecordRequest(providerID, float64(result.LatencyMS), true)
			breaker.RecordSuccess(ctx)
			return result, providerID, nil
		}

		m.telemetry.RecordRequest(providerID, float64(time.Since(callStart).Milliseconds()), false)
		lastErr = invokeErr
		ge, _ := gwerrors.AsGatewayError(invokeErr)
		if ge == nil {
			breaker.RecordFailure(ctx)
			continue
		}

		breaker.RecordFailure(ctx)
		if ge.MarksDegraded() {
			m.registry.SetStatus(providerID, gateway.StatusDegraded)
		}
		if !ge.IsFallbackable() {
			return nil, providerID, ge
		}
	}

	return &gateway.InferenceResult{Success: false, ErrorMessage: errMessage(lastErr)}, lastProvider, lastErr
}

func errMessage(err error) string {
	if err == nil {
		return "all candidates exhausted"
	}
	return err.Error()
}

// Rankings exposes the decision engine's scoring output for every
// active candidate, for introspection endpoints.
func (m *Manager) Rankings(req *gateway.InferenceRequest, policyName string) []*gateway.Provider {
	pol, ok := m.policies.Get(policyName)
	if !ok {
		pol, ok = m.policies.Get("balanced")
		if !ok {
			return nil
		}
	}

	var candidates []*gateway.Provider
	for _, p := range m.registry.ActiveProviders() {
		matches := true
		for _, capability := range req.Capabilities {
			if !p.HasCapability(capability) {
				matches = false
				break
			}
		}
		if matches {
			candidates = append(candidates, p)
		}
	}

	scores := make(map[string]gateway.ProviderScore, len(candidates))
	weights := pol.ScoringWeights()
	for _, p := range candidates {
		adapter, ok := m.registry.Adapter(p.ID)
		if !ok {
			continue
		}
		scores[p.ID] = scoring.Score(p, adapter, req, weights, m.telemetry)
	}

	return scoring.Ranked(candidates, scores, m.telemetry)
}

// ProviderStatus is one provider's entry in Status's summary.
type ProviderStatus struct {
	ID           string
	OperationalStatus gateway.OperationalStatus
	Health       gateway.HealthStatus
	Metrics      telemetry.Metrics
	CircuitState resilience.CircuitState
}

// SystemStatus summarizes every provider's operational and health
// state, for an operator dashboard or status endpoint.
type SystemStatus struct {
	TotalProviders   int
	HealthyProviders int
	Providers        map[string]ProviderStatus
	Policies         []string
}

// Status builds a SystemStatus snapshot.
func (m *Manager) Status(ctx context.Context) SystemStatus {
	providers := m.registry.AllProviders()
	statuses := make(map[string]ProviderStatus, len(providers))
	healthy := 0

	for _, p := range providers {
		health := m.telemetry.LastHealth(p.ID)
		status := ProviderStatus{
			ID:                p.ID,
			OperationalStatus: p.Status,
			Health:            gateway.HealthStatus(health.Status),
			Metrics:           m.telemetry.Metrics(p.ID),
			CircuitState:      m.breakerFor(p.ID).State(ctx),
		}
		if status.Health == gateway.HealthHealthy {
			healthy++
		}
		statuses[p.ID] = status
	}

	var policyNames []string
	for _, p := range m.policies.Active() {
		policyNames = append(policyNames, p.Name)
	}

	return SystemStatus{
		TotalProviders:   len(providers),
		HealthyProviders: healthy,
		Providers:        statuses,
		Policies:         policyNames,
	}
}

