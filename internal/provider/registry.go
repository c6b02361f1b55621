package provider

import (
	"errors"
	"fmt"
	"sort"

	"llm-gateway/internal/models"
)

// Registry maintains the set of configured providers keyed by identifier.
// It is populated once during startup and only read afterwards, so lookups
// need no locking.
type Registry struct {
	byName map[string]Provider
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Provider),
	}
}

// Register adds the provider to the registry.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider must not be nil")
	}
	if p.Name() == "" {
		return errors.New("provider name must not be empty")
	}
	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.byName[p.Name()] = p
	return nil
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns the registered provider identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many providers are registered.
func (r *Registry) Len() int {
	return len(r.byName)
}

// Models lists the default model of every registered provider.
func (r *Registry) Models() []models.ModelInfo {
	names := r.Names()
	out := make([]models.ModelInfo, 0, len(names))
	for _, name := range names {
		out = append(out, models.ModelInfo{
			ID:       r.byName[name].DefaultModel(),
			Provider: name,
		})
	}
	return out
}
