package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcrelay/gateway/internal/config"
)

const sampleGatewayYAML = `
providers:
  - id: openai-primary
    adapter: http
    base_url: https://api.openai.com/v1
    api_key_env: OPENAI_API_KEY
    priority: 1
    capabilities: [chat]
    models:
      - name: gpt-4o-mini
        max_tokens: 128000
        cost_per_1k_input: 0.15
        cost_per_1k_output: 0.6
policies:
  - name: cost-optimized
    strategy: weighted
    weights:
      cost: 0.7
      latency: 0.3
    enabled: true
autoscaling:
  requests_per_minute: 500
  requests_per_hour: 10000
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadGatewayConfig_ParsesProvidersAndPolicies(t *testing.T) {
	path := writeTempConfig(t, sampleGatewayYAML)

	cfg, err := config.LoadGatewayConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "openai-primary", cfg.Providers[0].ID)
	require.Len(t, cfg.Providers[0].Models, 1)
	assert.Equal(t, "gpt-4o-mini", cfg.Providers[0].Models[0].Name)

	require.Len(t, cfg.Policies, 1)
	assert.Equal(t, "cost-optimized", cfg.Policies[0].Name)

	assert.Equal(t, 500, cfg.Autoscaling.RequestsPerMinute)
}

func TestLoadGatewayConfig_LayersOverDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleGatewayYAML)

	cfg, err := config.LoadGatewayConfig(path)
	require.NoError(t, err)

	// circuit_breaker section absent from the YAML; defaults should apply.
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreaker.RecoveryTimeout)
}

func TestLoadGatewayConfig_MissingFileErrors(t *testing.T) {
	_, err := config.LoadGatewayConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGatewayManager_GetReturnsLoadedConfig(t *testing.T) {
	path := writeTempConfig(t, sampleGatewayYAML)

	mgr, err := config.NewGatewayManager(path, nil)
	require.NoError(t, err)

	cfg := mgr.Get()
	require.Len(t, cfg.Providers, 1)
}

func TestGatewayManager_ReloadsOnFileWrite(t *testing.T) {
	path := writeTempConfig(t, sampleGatewayYAML)

	mgr, err := config.NewGatewayManager(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Watch(ctx))
	defer mgr.Close()

	updated := sampleGatewayYAML + "\n  # trailing comment to force a write event\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		return len(mgr.Get().Providers) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayManager_KeepsPriorConfigOnReloadFailure(t *testing.T) {
	path := writeTempConfig(t, sampleGatewayYAML)

	mgr, err := config.NewGatewayManager(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Watch(ctx))
	defer mgr.Close()

	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))
	time.Sleep(700 * time.Millisecond)

	// reload should have failed silently, retaining the last-good config
	assert.Len(t, mgr.Get().Providers, 1)
}
