package provider

import "sync"

// Registry holds the enabled sources keyed by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[ProviderName]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[ProviderName]Source),
	}
}

// Register adds a source to the registry.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns a source by name, or nil if not registered.
func (r *Registry) Get(name ProviderName) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// All returns all registered sources in research order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Source
	for _, name := range AllProviderNames() {
		if s, ok := r.sources[name]; ok {
			result = append(result, s)
		}
	}
	return result
}

// Names returns the registered source names in research order.
func (r *Registry) Names() []ProviderName {
	all := r.All()
	names := make([]ProviderName, len(all))
	for i, s := range all {
		names[i] = s.Name()
	}
	return names
}
