package decision_test

import (
	"context"
	"testing"

	"github.com/arcrelay/gateway/internal/decision"
	"github.com/arcrelay/gateway/internal/policy"
	"github.com/arcrelay/gateway/internal/registry"
	"github.com/arcrelay/gateway/internal/telemetry"
	"github.com/arcrelay/gateway/pkg/gateway"
)

type stubAdapter struct {
	id   string
	cost float64
}

func (s *stubAdapter) ID() string { return s.id }
func (s *stubAdapter) Invoke(ctx context.Context, req *gateway.InferenceRequest) (*gateway.InferenceResult, error) {
	return &gateway.InferenceResult{Success: true}, nil
}
func (s *stubAdapter) HealthCheck(ctx context.Context) (gateway.HealthStatus, error) {
	return gateway.HealthHealthy, nil
}
func (s *stubAdapter) EstimateCost(req *gateway.InferenceRequest) float64 { return s.cost }
func (s *stubAdapter) ListModels(ctx context.Context) ([]gateway.ModelSpec, error) {
	return nil, nil
}
func (s *stubAdapter) Capabilities() []string { return []string{"chat"} }

func newTestRequest() *gateway.InferenceRequest {
	return &gateway.InferenceRequest{
		Messages:  []gateway.Message{{Role: gateway.RoleUser, Content: "hi"}},
		MaxTokens: 100,
		Latency:   gateway.LatencyMedium,
	}
}

func TestEngine_RoutesToHighestScoringProvider(t *testing.T) {
	reg := registry.New()
	reg.Register(&gateway.Provider{ID: "a", Status: gateway.StatusActive, Priority: 1, Capabilities: []string{"chat"}}, &stubAdapter{id: "a", cost: 0})
	reg.Register(&gateway.Provider{ID: "b", Status: gateway.StatusActive, Priority: 5, Capabilities: []string{"chat"}}, &stubAdapter{id: "b", cost: 0})

	pm, err := policy.NewManager("", nil)
	if err != nil {
		t.Fatal(err)
	}

	engine := decision.New(reg, telemetry.NewStore(), pm, decision.NewCache(0))
	dec, err := engine.Route(context.Background(), newTestRequest(), "balanced")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Provider == "" {
		t.Fatal("expected a provider to be selected")
	}
}

func TestEngine_CacheHitOnSecondCall(t *testing.T) {
	reg := registry.New()
	reg.Register(&gateway.Provider{ID: "a", Status: gateway.StatusActive, Capabilities: []string{"chat"}}, &stubAdapter{id: "a"})

	pm, err := policy.NewManager("", nil)
	if err != nil {
		t.Fatal(err)
	}
	engine := decision.New(reg, telemetry.NewStore(), pm, decision.NewCache(0))

	req := newTestRequest()
	first, err := engine.Route(context.Background(), req, "balanced")
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheHit {
		t.Fatal("first call should not be a cache hit")
	}

	second, err := engine.Route(context.Background(), req, "balanced")
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit {
		t.Fatal("second identical call should be a cache hit")
	}
}

func TestEngine_NoCandidatesFallsThroughPolicyChainThenFails(t *testing.T) {
	reg := registry.New() // empty registry: no providers at all

	pm, err := policy.NewManager("", nil)
	if err != nil {
		t.Fatal(err)
	}
	engine := decision.New(reg, telemetry.NewStore(), pm, decision.NewCache(0))

	_, err = engine.Route(context.Background(), newTestRequest(), "latency_first")
	if err == nil {
		t.Fatal("expected NoProvidersAvailable when registry is empty")
	}
}

func TestEngine_InvalidRequestRejectedBeforeRouting(t *testing.T) {
	reg := registry.New()
	pm, err := policy.NewManager("", nil)
	if err != nil {
		t.Fatal(err)
	}
	engine := decision.New(reg, telemetry.NewStore(), pm, decision.NewCache(0))

	bad := &gateway.InferenceRequest{Messages: nil, MaxTokens: 10}
	_, err = engine.Route(context.Background(), bad, "balanced")
	if err == nil {
		t.Fatal("expected validation error for empty messages")
	}
}
