package handler

import "sync"

// Registry maps syncID to the Handler currently serving that folder,
// grounded on the Session Orchestrator owning per-folder state directly
// (spec §9 Design Notes: "no global mutable state") rather than a package
// level map. One Registry is shared by every inbound connection Serve
// accepts; Handlers come and go as folders are added, paused, or removed.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]*Handler)}
}

// Register makes h reachable by its syncID, replacing any prior Handler for
// that syncID.
func (r *Registry) Register(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[h.syncID] = h
}

// Unregister removes the Handler for syncID, if any (folder paused or
// removed locally).
func (r *Registry) Unregister(syncID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, syncID)
}

// Lookup returns the Handler serving syncID, if any.
func (r *Registry) Lookup(syncID string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[syncID]
	return h, ok
}
