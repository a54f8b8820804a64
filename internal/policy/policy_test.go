package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arcrelay/gateway/internal/policy"
	"github.com/arcrelay/gateway/pkg/gateway"
)

func TestNewManager_DefaultsPresentWithoutFile(t *testing.T) {
	m, err := policy.NewManager("", nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"latency_first", "cost_first", "reliability_first", "balanced"} {
		if _, ok := m.Get(name); !ok {
			t.Fatalf("expected default policy %q", name)
		}
	}
}

func TestPolicy_WeightsNormalizeToOne(t *testing.T) {
	m, err := policy.NewManager("", nil)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := m.Get("latency_first")

	var total float64
	for _, w := range p.Weights {
		total += w
	}
	if total < 0.999 || total > 1.001 {
		t.Fatalf("expected weights to sum to 1.0, got %v", total)
	}
}

func TestNewManager_FileOverlayAddsCustomPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	content := `
custom_example:
  strategy: custom
  weights:
    latency: 1.0
  constraints: {}
  fallbacks: []
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := policy.NewManager(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	p, ok := m.Get("custom_example")
	if !ok {
		t.Fatal("expected custom_example policy to be loaded from file")
	}
	// The three unset weights default to 0.25 before normalization.
	if p.Weights["latency"] != 1.0/1.75 {
		t.Fatalf("expected latency weight to normalize to 1/1.75, got %v", p.Weights["latency"])
	}
}

func TestPolicy_ApplyFiltersByMaxLatencyConstraint(t *testing.T) {
	m, err := policy.NewManager("", nil)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := m.Get("latency_first")

	scored := map[string]gateway.ProviderScore{
		"fast": {ProviderID: "fast", Composite: 80},
		"slow": {ProviderID: "slow", Composite: 90},
	}
	inputs := map[string]policy.ScoreInputs{
		"fast": {LatencyMS: 200},
		"slow": {LatencyMS: 5000},
	}

	survivors := p.Apply(scored, inputs)
	if len(survivors) != 1 || survivors[0] != "fast" {
		t.Fatalf("expected only fast to survive max_latency_ms constraint, got %v", survivors)
	}
}
