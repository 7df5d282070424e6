// Package registry maps client routing identities to the capability
// bitmask they advertised in their handshake. Entries are inserted by
// the router's handshake path and never mutated afterwards; the server
// does not evict records on idle.
package registry

import (
	"sync"

	"computeq/pkg/types"
)

// Registry is the identity->capability map.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]types.Caps
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[string]types.Caps)}
}

// Register stores the capability bitmask for an identity. It returns
// false without touching the entry when the identity is already
// registered.
func (r *Registry) Register(identity []byte, caps types.Caps) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(identity)
	if _, exists := r.clients[key]; exists {
		return false
	}
	r.clients[key] = caps
	return true
}

// Lookup returns the capability bitmask registered for an identity.
func (r *Registry) Lookup(identity []byte) (types.Caps, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.clients[string(identity)]
	return caps, ok
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
