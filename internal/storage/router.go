package storage

import (
	"sync"
)

// Router resolves, per stream id, the ordered set of backends a stream fans
// out to. Streams without a registration fall back to the local backend.
type Router struct {
	backends []Backend // all configured, local always first
	local    Backend

	mu      sync.RWMutex
	streams map[string][]Backend
}

// NewRouter builds a Router over the configured backends. backends must
// contain exactly one local backend.
func NewRouter(backends []Backend) *Router {
	r := &Router{
		backends: backends,
		streams:  make(map[string][]Backend),
	}
	for _, b := range backends {
		if b.Kind() == KindLocal {
			r.local = b
			break
		}
	}
	return r
}

// Local returns the always-present local backend.
func (r *Router) Local() Backend {
	return r.local
}

// Kinds returns the kinds of all configured backends.
func (r *Router) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.backends))
	for _, b := range r.backends {
		kinds = append(kinds, b.Kind())
	}
	return kinds
}

// Register remembers which of the configured backends the stream should use.
// Requested kinds with no configured backend are silently dropped; an empty
// selection falls back to the local backend on Resolve.
func (r *Router) Register(streamID string, kinds []Kind) {
	requested := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		requested[k] = true
	}

	var selected []Backend
	for _, b := range r.backends {
		if requested[b.Kind()] {
			selected = append(selected, b)
		}
	}

	r.mu.Lock()
	r.streams[streamID] = selected
	r.mu.Unlock()
}

// Resolve returns the stream's registered backends, or the local backend
// alone when nothing was registered.
func (r *Router) Resolve(streamID string) []Backend {
	r.mu.RLock()
	selected := r.streams[streamID]
	r.mu.RUnlock()

	if len(selected) == 0 {
		return []Backend{r.local}
	}
	return selected
}

// Registered reports whether the stream has an explicit backend registration.
func (r *Router) Registered(streamID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.streams[streamID]
	return ok
}

// Unregister clears the stream's backend selection.
func (r *Router) Unregister(streamID string) {
	r.mu.Lock()
	delete(r.streams, streamID)
	r.mu.Unlock()
}
