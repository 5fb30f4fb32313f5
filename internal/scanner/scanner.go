package scanner

import (
	"fmt"
	"sort"
	"sync"

	"MarketScanner/internal/ports"
)

// Registry keeps a mapping from source names to their connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]ports.SourceConnector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: map[string]ports.SourceConnector{}}
}

// Register adds or replaces a connector.
func (r *Registry) Register(conn ports.SourceConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectors == nil {
		r.connectors = map[string]ports.SourceConnector{}
	}
	r.connectors[conn.Name()] = conn
}

// Resolve returns a connector by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.SourceConnector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conn, ok := r.connectors[name]; ok {
		return conn, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connectors[name]
	return ok
}

// Names lists registered sources alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
