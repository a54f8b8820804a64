package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig is the routing core's own configuration schema: the
// providers it can route to, the named scoring/constraint policies,
// and the autoscaler/circuit-breaker/bulkhead tunables. It is loaded
// by LoadGatewayConfig and hot-reloaded by GatewayManager (fsnotify +
// atomic pointer swap).
type GatewayConfig struct {
	Providers      []GatewayProviderConfig    `yaml:"providers"`
	Policies       []GatewayPolicyConfig      `yaml:"policies"`
	Autoscaling    AutoscalingConfig          `yaml:"autoscaling"`
	CircuitBreaker GatewayCircuitBreakerConfig `yaml:"circuit_breaker"`
	Bulkhead       GatewayBulkheadConfig      `yaml:"bulkhead"`
}

// GatewayProviderConfig describes one routable provider: its adapter
// kind, connection details, and the models/capabilities it exposes.
type GatewayProviderConfig struct {
	ID           string            `yaml:"id"`
	Adapter      string            `yaml:"adapter"` // "http" or "local"
	BaseURL      string            `yaml:"base_url"`
	APIKeyEnv    string            `yaml:"api_key_env"` // env var name, or a fully scheme-prefixed secret ref (e.g. "vault://secret/data/openai#api_key")
	Timeout      time.Duration     `yaml:"timeout"`
	Priority     int               `yaml:"priority"`
	Capabilities []string          `yaml:"capabilities"`
	Models       []ModelSpecConfig `yaml:"models"`
}

// ModelSpecConfig is one model a provider exposes, with its pricing.
type ModelSpecConfig struct {
	Name               string  `yaml:"name"`
	MaxTokens          int     `yaml:"max_tokens"`
	CostPer1KInput     float64 `yaml:"cost_per_1k_input"`
	CostPer1KOutput    float64 `yaml:"cost_per_1k_output"`
}

// GatewayPolicyConfig is the on-disk shape of a routing policy in the
// gateway config file. policy.Manager does not read this section; it
// loads policies from its own YAML file.
type GatewayPolicyConfig struct {
	Name        string             `yaml:"name"`
	Strategy    string             `yaml:"strategy"`
	Weights     map[string]float64 `yaml:"weights"`
	Constraints struct {
		MaxLatencyMS      float64 `yaml:"max_latency_ms"`
		MaxCostPerRequest float64 `yaml:"max_cost_per_request"`
		MinSuccessRate    float64 `yaml:"min_success_rate"`
	} `yaml:"constraints"`
	Fallbacks []string `yaml:"fallbacks"`
	Enabled   bool     `yaml:"enabled"`
}

// AutoscalingConfig holds the admission controller's tunables.
type AutoscalingConfig struct {
	RequestsPerMinute  int     `yaml:"requests_per_minute"`
	RequestsPerHour    int     `yaml:"requests_per_hour"`
	CheapModel         string  `yaml:"cheap_model"`
	SpikeMultiplier    float64 `yaml:"spike_multiplier"`
	SpikeWindowSeconds int     `yaml:"spike_window_seconds"`
	DailyTokenBudget   int64   `yaml:"daily_token_budget"`
}

// GatewayCircuitBreakerConfig holds circuit breaker tunables, matching
// resilience.CircuitBreakerConfig's fields for YAML overlay.
type GatewayCircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// GatewayBulkheadConfig holds per-provider bulkhead concurrency caps.
type GatewayBulkheadConfig struct {
	DefaultMax int            `yaml:"default_max"`
	PerProvider map[string]int `yaml:"per_provider"`
}

// DefaultGatewayConfig returns conservative defaults matching the
// routing subsystem's own package-level defaults (admission.DefaultConfig,
// resilience.DefaultCircuitBreakerConfig, resilience.DefaultBulkheadMax),
// used when no providers/policies/autoscaling section is present in the
// YAML file being loaded.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Autoscaling: AutoscalingConfig{
			RequestsPerMinute:  100,
			RequestsPerHour:    1000,
			CheapModel:         "cheap-default",
			SpikeMultiplier:    4.0,
			SpikeWindowSeconds: 60,
			DailyTokenBudget:   1_000_000,
		},
		CircuitBreaker: GatewayCircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 3,
		},
		Bulkhead: GatewayBulkheadConfig{
			DefaultMax: 10,
		},
	}
}

// LoadGatewayConfig reads and parses a GatewayConfig from path,
// layering its sections over DefaultGatewayConfig.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	cfg := DefaultGatewayConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gateway config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing gateway config %s: %w", path, err)
	}
	return cfg, nil
}
