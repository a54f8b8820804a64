package provider

import (
	"context"

	"github.com/arcrelay/gateway/pkg/gateway"
)

// Adapter is the uniform interface every backend (cloud or local)
// implements so the routing core can treat them interchangeably,
// independent of any vendor's wire format.
//
// Adapters never retry internally — that is the reliability envelope's
// job — and never emit their own cost/latency telemetry independently;
// the routing manager records one uniform event per invocation.
type Adapter interface {
	// ID returns the provider identifier this adapter serves.
	ID() string

	// Invoke executes one inference call. Errors are always a
	// *errors.GatewayError so execute-with-fallback can classify them.
	Invoke(ctx context.Context, req *gateway.InferenceRequest) (*gateway.InferenceResult, error)

	// HealthCheck performs a lightweight liveness probe. It does not
	// pass through the circuit breaker.
	HealthCheck(ctx context.Context) (gateway.HealthStatus, error)

	// EstimateCost is pure and deterministic: pricing config plus a
	// conservative token estimate. It must never perform I/O, since
	// scoring calls it for every candidate on every decision.
	EstimateCost(req *gateway.InferenceRequest) float64

	// ListModels returns the models this adapter currently serves. May
	// be cached for minutes; must never block a routing decision.
	ListModels(ctx context.Context) ([]gateway.ModelSpec, error)

	// Capabilities returns the adapter's static capability set.
	Capabilities() []string
}
