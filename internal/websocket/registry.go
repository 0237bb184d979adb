package chatws

import (
	"sync"

	"github.com/Aaryankumar13084/TeleChat/internal/identity"
)

// Registry maps each authenticated identity to its set of live
// connections. It is in-memory bookkeeping only and is never a source of
// truth for delivery or read state; reconnecting clients reconcile from
// the store.
type Registry struct {
	mu      sync.RWMutex
	clients map[identity.ID]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[identity.ID]map[*Client]struct{}),
	}
}

// Register adds a connection under its identity. Returns true on the 0->1
// transition, which is the caller's cue to announce the identity online.
func (r *Registry) Register(client *Client) bool {
	if client == nil || client.identity.IsZero() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[client.identity]
	if !ok {
		set = make(map[*Client]struct{})
		r.clients[client.identity] = set
	}
	set[client] = struct{}{}
	return len(set) == 1
}

// Deregister removes one connection. Returns true on the 1->0 transition.
// Removing an unknown connection is a no-op.
func (r *Registry) Deregister(client *Client) bool {
	if client == nil || client.identity.IsZero() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[client.identity]
	if !ok {
		return false
	}
	if _, exists := set[client]; !exists {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(r.clients, client.identity)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of the identity's live connections, so
// fan-out iteration never races register/deregister. Empty for unknown or
// offline identities.
func (r *Registry) ConnectionsFor(id identity.ID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.clients[id]
	if !ok {
		return nil
	}

	connections := make([]*Client, 0, len(set))
	for client := range set {
		connections = append(connections, client)
	}
	return connections
}

func (r *Registry) IsOnline(id identity.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[id]) > 0
}
