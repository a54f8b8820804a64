// Package localadapter models a locally-hosted inference engine (an
// Ollama-style OpenAI-compatible server running on the same network as
// the gateway): no API key, no per-token billing, and a distinct
// default base URL, composed on top of httpadapter's wire handling.
package localadapter

import (
	"context"
	"time"

	"github.com/arcrelay/gateway/internal/provider/httpadapter"
	"github.com/arcrelay/gateway/pkg/gateway"
)

// DefaultBaseURL matches a local engine's default OpenAI-compatible port.
const DefaultBaseURL = "http://localhost:11434/v1"

// DefaultModels lists common locally hosted models. Override via Config.Models
// for a site running a different model set.
var DefaultModels = []string{
	"llama3.2",
	"llama3.1",
	"mistral",
	"mixtral",
	"codellama",
	"qwen2.5",
	"phi3",
	"gemma2",
}

// Config describes one local engine deployment.
type Config struct {
	ProviderID string
	BaseURL    string // defaults to DefaultBaseURL
	Timeout    time.Duration
	Models     []string // model names; local engines are not billed per-token
}

// Adapter wraps httpadapter.Adapter with local-engine defaults: no
// credential, zero estimated cost, and a generous timeout since local
// engines can be CPU-bound.
type Adapter struct {
	inner *httpadapter.Adapter
}

// New creates a localadapter.Adapter for one local engine deployment.
func New(cfg Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	models := cfg.Models
	if len(models) == 0 {
		models = DefaultModels
	}

	specs := make([]gateway.ModelSpec, 0, len(models))
	for _, m := range models {
		specs = append(specs, gateway.ModelSpec{
			Name:            m,
			ContextWindow:   8192,
			CostPerTokenIn:  0,
			CostPerTokenOut: 0,
		})
	}

	return &Adapter{inner: httpadapter.New(httpadapter.Config{
		ProviderID:   cfg.ProviderID,
		BaseURL:      baseURL,
		APIKey:       "",
		Timeout:      timeout,
		Models:       specs,
		Capabilities: []string{"chat", "local"},
	})}
}

func (a *Adapter) ID() string { return a.inner.ID() }

func (a *Adapter) Invoke(ctx context.Context, req *gateway.InferenceRequest) (*gateway.InferenceResult, error) {
	return a.inner.Invoke(ctx, req)
}

func (a *Adapter) HealthCheck(ctx context.Context) (gateway.HealthStatus, error) {
	return a.inner.HealthCheck(ctx)
}

// EstimateCost is always zero: local inference has no per-token billing.
func (a *Adapter) EstimateCost(req *gateway.InferenceRequest) float64 {
	return 0
}

func (a *Adapter) ListModels(ctx context.Context) ([]gateway.ModelSpec, error) {
	return a.inner.ListModels(ctx)
}

func (a *Adapter) Capabilities() []string { return a.inner.Capabilities() }
