package stream

import (
	"sort"
	"sync"
)

// Registry maps a user id to the single live channel currently open for it.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register stores the handle for userID, replacing any prior handle. The
// replaced handle, if any, is returned and left open.
func (r *Registry) Register(userID string, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.handles[userID]
	r.handles[userID] = h
	return prev
}

// Unregister removes the entry for userID if it still points at h. A handle
// that was replaced by a later Register never evicts its successor.
func (r *Registry) Unregister(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.handles[userID]
	if !ok || cur != h {
		return false
	}
	delete(r.handles, userID)
	return true
}

// Lookup returns the handle registered for userID.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[userID]
	return h, ok
}

// Len reports the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Snapshot lists the connection info of every registered handle, sorted by user id.
func (r *Registry) Snapshot() []ConnInfo {
	r.mu.RLock()
	infos := make([]ConnInfo, 0, len(r.handles))
	for _, h := range r.handles {
		infos = append(infos, h.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].UserID < infos[j].UserID })
	return infos
}

// CloseAll closes and drops every handle. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]Handle)
	r.mu.Unlock()

	for _, h := range handles {
		_ = h.Close()
	}
}
