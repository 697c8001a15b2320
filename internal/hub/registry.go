package hub

import (
	"sync"

	"github.com/starford/influx/internal/metrics"
)

// Registry maps consumer identifiers to callbacks.
type Registry struct {
	mu        sync.Mutex
	consumers map[string]Callback
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{consumers: make(map[string]Callback)}
}

// Register adds cb under id. It is a no-op returning false when id is
// already registered.
func (r *Registry) Register(id string, cb Callback) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.consumers[id]; ok {
		return false
	}
	r.consumers[id] = cb
	metrics.Consumers.Inc()
	return true
}

// Deregister removes id. It is a no-op returning false when id is absent.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.consumers[id]; !ok {
		return false
	}
	delete(r.consumers, id)
	metrics.Consumers.Dec()
	return true
}

// Snapshot returns a copy of the current registrations.
func (r *Registry) Snapshot() map[string]Callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Callback, len(r.consumers))
	for id, cb := range r.consumers {
		out[id] = cb
	}
	return out
}

// Len returns the number of registered consumers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consumers)
}
