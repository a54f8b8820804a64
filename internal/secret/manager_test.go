package secret_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcrelay/gateway/internal/secret"
)

type stubProvider struct {
	values map[string]string
	calls  int
	err    error
}

func (s *stubProvider) Get(_ context.Context, path string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.values[path]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (s *stubProvider) Close() error { return nil }

func TestManager_RoutesByScheme(t *testing.T) {
	m := secret.NewManager()
	m.Register("env", &stubProvider{values: map[string]string{"OPENAI_API_KEY": "sk-test"}})

	val, err := m.Get(context.Background(), "env://OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", val)
}

func TestManager_NoSchemeReturnsValueAsIs(t *testing.T) {
	m := secret.NewManager()
	val, err := m.Get(context.Background(), "literal-value")
	require.NoError(t, err)
	assert.Equal(t, "literal-value", val)
}

func TestManager_UnregisteredSchemeErrors(t *testing.T) {
	m := secret.NewManager()
	_, err := m.Get(context.Background(), "vault://secret/data/x#key")
	assert.Error(t, err)
}

func TestManager_CloseClosesAllProviders(t *testing.T) {
	m := secret.NewManager()
	m.Register("env", &stubProvider{values: map[string]string{}})
	assert.NoError(t, m.Close())
}

func TestCachedProvider_CachesAfterFirstLookup(t *testing.T) {
	inner := &stubProvider{values: map[string]string{"secret/data/x#key": "cached-val"}}
	cached := secret.NewCachedProvider(inner, 0)

	ctx := context.Background()
	v1, err := cached.Get(ctx, "secret/data/x#key")
	require.NoError(t, err)
	assert.Equal(t, "cached-val", v1)

	v2, err := cached.Get(ctx, "secret/data/x#key")
	require.NoError(t, err)
	assert.Equal(t, "cached-val", v2)
	assert.Equal(t, 1, inner.calls, "second lookup should be served from cache")
}

func TestCachedProvider_PropagatesInnerError(t *testing.T) {
	inner := &stubProvider{err: errors.New("vault unreachable")}
	cached := secret.NewCachedProvider(inner, 0)

	_, err := cached.Get(context.Background(), "secret/data/x#key")
	assert.Error(t, err)
}
