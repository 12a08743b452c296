// Package registry is a minimal stand-in for the OS-entity registry the
// full operating system uses as a named lookup of mounted filesystems and
// block devices (spec.md §1 lists it as an external collaborator, out of
// scope for this core). The FAT32 engine only needs the narrow slice of its
// contract described here: register a value under a UUID, look it up
// later, and know when it has been removed.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is a process-wide map from UUID to an arbitrary registered
// value. Handles elsewhere in the engine (directory objects, open files)
// hold only a UUID, never a reference, so that removal is safely
// observable from every holder -- the pattern spec.md's Design Notes call
// for.
type Registry[T any] struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{byID: make(map[uuid.UUID]T)}
}

// Register stores value under a freshly generated UUID and returns it.
func (r *Registry[T]) Register(value T) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = value
	return id
}

// Lookup returns the value registered under id, if any.
func (r *Registry[T]) Lookup(id uuid.UUID) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byID[id]
	return v, ok
}

// Remove deregisters id.
func (r *Registry[T]) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}
