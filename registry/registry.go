// Package registry maps session identifiers to the live work unit serving
// them. At most one unit is registered under an id at any instant.
package registry

import (
	"sort"
	"sync"
)

// Handle is a live unit that can be told to stop.
//
// Abort must be safe to call more than once and from any goroutine. It should
// return promptly; teardown happens asynchronously in the unit itself.
type Handle interface {
	Abort()
}

// Registry is a mutex-guarded id -> Handle table. Create with New; the zero
// value is not usable.
type Registry struct {
	mu    sync.Mutex
	units map[string]Handle
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{units: make(map[string]Handle)}
}

// Register installs h under id. If another handle is already registered under
// id it is removed and aborted before Register returns, and is returned as
// replaced. Registering the same handle twice is a no-op.
func (r *Registry) Register(id string, h Handle) (replaced Handle) {
	r.mu.Lock()
	prev, ok := r.units[id]
	r.units[id] = h
	r.mu.Unlock()

	if !ok || prev == h {
		return nil
	}
	prev.Abort()
	return prev
}

// Rekey moves h from oldID to newID. It reports false, and changes nothing,
// when h is no longer the handle registered under oldID (it was replaced or
// removed in the meantime). A different handle already registered under
// newID is aborted, preserving the one-unit-per-id rule.
func (r *Registry) Rekey(oldID, newID string, h Handle) bool {
	r.mu.Lock()
	if cur, ok := r.units[oldID]; !ok || cur != h {
		r.mu.Unlock()
		return false
	}
	if oldID == newID {
		r.mu.Unlock()
		return true
	}

	prev, clash := r.units[newID]
	delete(r.units, oldID)
	r.units[newID] = h
	r.mu.Unlock()

	if clash && prev != h {
		prev.Abort()
	}
	return true
}

// Get returns the handle registered under id.
func (r *Registry) Get(id string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.units[id]
	return h, ok
}

// Remove deletes whatever is registered under id without aborting it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[id]; !ok {
		return false
	}
	delete(r.units, id)
	return true
}

// Release deletes the entry for id only if it still points at h. Units call
// this on teardown so they never evict a newer unit that took over the id.
func (r *Registry) Release(id string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.units[id]; !ok || cur != h {
		return false
	}
	delete(r.units, id)
	return true
}

// Abort removes the unit registered under id and signals it to stop.
// It returns false when no unit is registered; that is not an error.
func (r *Registry) Abort(id string) bool {
	r.mu.Lock()
	h, ok := r.units[id]
	if ok {
		delete(r.units, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	h.Abort()
	return true
}

// AbortAll removes and aborts every registered unit, returning how many there
// were.
func (r *Registry) AbortAll() int {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.units))
	for id, h := range r.units {
		handles = append(handles, h)
		delete(r.units, id)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Abort()
	}
	return len(handles)
}

// List returns the registered ids in sorted order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}
