// Package registry implements the provider registry: the routing core's
// authoritative, in-memory record of configured providers and their
// administrative status, plus the adapters that execute calls against
// them. The registry owns Provider/Adapter lifetime for the process;
// it never destroys a provider, only disables it.
package registry

import (
	"sync"

	"github.com/arcrelay/gateway/internal/provider"
	"github.com/arcrelay/gateway/pkg/gateway"
)

// Registry indexes Provider records and their Adapters, and answers the
// routing core's candidate-selection queries. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*gateway.Provider
	adapters  map[string]provider.Adapter
	// order preserves config load order for stable tie-breaking.
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		providers: make(map[string]*gateway.Provider),
		adapters:  make(map[string]provider.Adapter),
	}
}

// Register adds or replaces a provider record and its adapter. Called
// at startup for each configured provider.
func (r *Registry) Register(p *gateway.Provider, a provider.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.providers[p.ID] = p
	r.adapters[p.ID] = a
}

// AllProviders returns every registered provider, in load order.
func (r *Registry) AllProviders() []*gateway.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*gateway.Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// ActiveProviders returns providers whose persisted OperationalStatus is
// "active". This is a cheap filter over stored status — it never
// performs a live health probe, which would be too slow to run per
// candidate on every routing decision.
func (r *Registry) ActiveProviders() []*gateway.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*gateway.Provider, 0, len(r.order))
	for _, id := range r.order {
		p := r.providers[id]
		if p.Status == gateway.StatusActive {
			out = append(out, p)
		}
	}
	return out
}

// ProvidersByCapability filters ActiveProviders to those declaring cap.
func (r *Registry) ProvidersByCapability(cap string) []*gateway.Provider {
	var out []*gateway.Provider
	for _, p := range r.ActiveProviders() {
		if p.HasCapability(cap) {
			out = append(out, p)
		}
	}
	return out
}

// ProvidersForModel filters ActiveProviders to those serving modelName.
func (r *Registry) ProvidersForModel(modelName string) []*gateway.Provider {
	var out []*gateway.Provider
	for _, p := range r.ActiveProviders() {
		if _, ok := p.ModelByName(modelName); ok {
			out = append(out, p)
		}
	}
	return out
}

// Adapter returns the adapter bound to a provider id.
func (r *Registry) Adapter(providerID string) (provider.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[providerID]
	return a, ok
}

// Provider returns the provider record by id.
func (r *Registry) Provider(providerID string) (*gateway.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	return p, ok
}

// SetStatus transitions a provider's administrative status. Providers
// are never destroyed, only disabled or marked degraded.
func (r *Registry) SetStatus(providerID string, status gateway.OperationalStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[providerID]; ok {
		p.Status = status
	}
}
