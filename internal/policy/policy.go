// Package policy implements policy-driven routing configuration: named
// weight sets, hard constraints, and ordered fallback-policy chains,
// loaded from YAML with atomic hot-reload in the teacher's config
// manager idiom.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/arcrelay/gateway/internal/scoring"
	"github.com/arcrelay/gateway/pkg/gateway"
)

// Strategy names the routing intent a policy expresses. It is
// informational only — the weights and constraints fields are what the
// engine actually evaluates.
type Strategy string

const (
	StrategyLatencyFirst     Strategy = "latency_first"
	StrategyCostFirst        Strategy = "cost_first"
	StrategyReliabilityFirst Strategy = "reliability_first"
	StrategyBalanced         Strategy = "balanced"
	StrategyCustom           Strategy = "custom"
)

// Constraints are the hard filters applied before ranking. Zero value
// for a field means "unconstrained".
type Constraints struct {
	MaxLatencyMS      float64 `yaml:"max_latency_ms"`
	MaxCostPerRequest float64 `yaml:"max_cost_per_request"`
	MinSuccessRate    float64 `yaml:"min_success_rate"`
}

// Policy is one named routing configuration.
type Policy struct {
	Name        string             `yaml:"name"`
	Strategy    Strategy           `yaml:"strategy"`
	Weights     map[string]float64 `yaml:"weights"`
	Constraints Constraints        `yaml:"constraints"`
	Fallbacks   []string           `yaml:"fallbacks"`
	Enabled     bool               `yaml:"enabled"`
}

// normalize fills in missing weight keys at an equal default and
// rescales the whole set to sum to 1.0, matching the routing
// subsystem's original weight-normalization behavior.
func (p *Policy) normalize() {
	if p.Weights == nil {
		p.Weights = map[string]float64{}
	}
	for _, key := range []string{"latency", "cost", "reliability", "capability"} {
		if _, ok := p.Weights[key]; !ok {
			p.Weights[key] = 0.25
		}
	}

	var total float64
	for _, w := range p.Weights {
		total += w
	}
	if total > 0 {
		for k, w := range p.Weights {
			p.Weights[k] = w / total
		}
	}
}

// ScoringWeights projects the policy's named weight map into the
// scoring package's positional Weights struct.
func (p *Policy) ScoringWeights() scoring.Weights {
	return scoring.Weights{
		Latency:     p.Weights["latency"],
		Cost:        p.Weights["cost"],
		Reliability: p.Weights["reliability"],
		Capability:  p.Weights["capability"],
	}
}

// meetsConstraints reports whether a scored candidate satisfies every
// configured hard constraint.
func (p *Policy) meetsConstraints(score gateway.ProviderScore, metrics ScoreInputs) bool {
	if p.Constraints.MaxLatencyMS > 0 && metrics.LatencyMS > p.Constraints.MaxLatencyMS {
		return false
	}
	if p.Constraints.MaxCostPerRequest > 0 && metrics.CostEstimate > p.Constraints.MaxCostPerRequest {
		return false
	}
	if p.Constraints.MinSuccessRate > 0 && metrics.Reliability < p.Constraints.MinSuccessRate {
		return false
	}
	return true
}

// ScoreInputs are the raw per-candidate fields constraint checking
// reads, alongside the composite score itself.
type ScoreInputs struct {
	LatencyMS    float64
	CostEstimate float64
	Reliability  float64
}

// Apply filters candidates to those meeting the policy's hard
// constraints. Ranking the survivors is scoring.Ranked's job, which
// also applies the priority/p95 tie-break the caller needs.
func (p *Policy) Apply(scored map[string]gateway.ProviderScore, inputs map[string]ScoreInputs) []string {
	var survivors []string
	for id, score := range scored {
		if p.meetsConstraints(score, inputs[id]) {
			survivors = append(survivors, id)
		}
	}
	return survivors
}

// fileConfig is the on-disk shape for policy.yaml.
type fileConfig map[string]*Policy

// Manager owns the set of configured policies, reloadable from a YAML
// file. Four named defaults are always present unless overridden.
type Manager struct {
	policies atomic.Pointer[map[string]*Policy]
	path     string
	logger   *slog.Logger
}

// NewManager builds the manager, loading defaults and then overlaying
// any policies found at path (path may not exist; that is not an
// error, defaults alone are valid).
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	m := &Manager{path: path, logger: logger}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func defaultPolicies() map[string]*Policy {
	defaults := map[string]*Policy{
		"latency_first": {
			Name:        "latency_first",
			Strategy:    StrategyLatencyFirst,
			Weights:     map[string]float64{"latency": 0.6, "cost": 0.1, "reliability": 0.2, "capability": 0.1},
			Constraints: Constraints{MaxLatencyMS: 1000},
			Fallbacks:   []string{"balanced", "cost_first"},
			Enabled:     true,
		},
		"cost_first": {
			Name:        "cost_first",
			Strategy:    StrategyCostFirst,
			Weights:     map[string]float64{"latency": 0.1, "cost": 0.6, "reliability": 0.2, "capability": 0.1},
			Constraints: Constraints{MaxCostPerRequest: 0.01},
			Fallbacks:   []string{"balanced", "latency_first"},
			Enabled:     true,
		},
		"reliability_first": {
			Name:        "reliability_first",
			Strategy:    StrategyReliabilityFirst,
			Weights:     map[string]float64{"latency": 0.2, "cost": 0.1, "reliability": 0.6, "capability": 0.1},
			Constraints: Constraints{MinSuccessRate: 0.95},
			Fallbacks:   []string{"balanced", "latency_first"},
			Enabled:     true,
		},
		"balanced": {
			Name:      "balanced",
			Strategy:  StrategyBalanced,
			Weights:   map[string]float64{"latency": 0.3, "cost": 0.3, "reliability": 0.3, "capability": 0.1},
			Fallbacks: []string{"latency_first", "cost_first"},
			Enabled:   true,
		},
	}
	for _, p := range defaults {
		p.normalize()
	}
	return defaults
}

func (m *Manager) reload() error {
	policies := defaultPolicies()

	if m.path != "" {
		data, err := os.ReadFile(m.path)
		if err != nil {
			if os.IsNotExist(err) {
				m.policies.Store(&policies)
				return nil
			}
			return fmt.Errorf("read policy file: %w", err)
		}

		var fromFile fileConfig
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return fmt.Errorf("parse policy file: %w", err)
		}
		for name, p := range fromFile {
			p.Name = name
			if p.Strategy == "" {
				p.Strategy = StrategyBalanced
			}
			p.normalize()
			policies[name] = p
		}
	}

	m.policies.Store(&policies)
	return nil
}

// Reload re-reads the policy file from disk, logging and keeping the
// prior policy set on failure.
func (m *Manager) Reload() {
	if err := m.reload(); err != nil {
		if m.logger != nil {
			m.logger.Warn("policy reload failed, keeping previous policies", "error", err)
		}
	}
}

// Get returns a named policy, or false if unknown.
func (m *Manager) Get(name string) (*Policy, bool) {
	policies := *m.policies.Load()
	p, ok := policies[name]
	return p, ok
}

// Active returns every enabled policy.
func (m *Manager) Active() []*Policy {
	policies := *m.policies.Load()
	out := make([]*Policy, 0, len(policies))
	for _, p := range policies {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
