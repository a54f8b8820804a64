package localadapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcrelay/gateway/internal/provider/localadapter"
	"github.com/arcrelay/gateway/pkg/gateway"
)

func TestNew_DefaultsBaseURLAndModels(t *testing.T) {
	a := localadapter.New(localadapter.Config{ProviderID: "local-1"})
	assert.Equal(t, "local-1", a.ID())

	models, err := a.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, len(localadapter.DefaultModels))
	assert.Equal(t, localadapter.DefaultModels[0], models[0].Name)
}

func TestNew_CustomModelsOverrideDefaults(t *testing.T) {
	a := localadapter.New(localadapter.Config{ProviderID: "local-1", Models: []string{"custom-model"}})
	models, err := a.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "custom-model", models[0].Name)
}

func TestEstimateCost_AlwaysZero(t *testing.T) {
	a := localadapter.New(localadapter.Config{ProviderID: "local-1"})
	cost := a.EstimateCost(&gateway.InferenceRequest{
		Model:     "llama3.2",
		MaxTokens: 1000,
		Messages:  []gateway.Message{{Role: gateway.RoleUser, Content: "a very long message indeed"}},
	})
	assert.Equal(t, 0.0, cost)
}

func TestCapabilities_IncludesLocal(t *testing.T) {
	a := localadapter.New(localadapter.Config{ProviderID: "local-1"})
	assert.Contains(t, a.Capabilities(), "local")
	assert.Contains(t, a.Capabilities(), "chat")
}
