package object

import (
	"errors"
	"sync"
)

// Sentinel errors returned by Registry operations. They are expected,
// non-fatal outcomes that callers branch on, not invariant violations.
var (
	ErrAlreadyExists = errors.New("object: already exists")
	ErrInUse         = errors.New("object: in use")
)

// entry wraps a stored object with a reference count tracking outstanding
// logical holders (tasks that received it as an input).
type entry struct {
	obj      *Object
	refCount int
}

// Registry is the concurrent, single-insertion-per-id store of published
// objects. Lookups and insertions serialize with per-registry granularity;
// a published object is observable to every subsequent Get across
// goroutines because both paths hold the same mutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[ID]*entry
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ID]*entry)}
}

// Store inserts obj under its own id. Returns ErrAlreadyExists if the id
// is already taken; the existing entry is left untouched.
func (r *Registry) Store(obj *Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[obj.ID()]; exists {
		return ErrAlreadyExists
	}
	r.entries[obj.ID()] = &entry{obj: obj}
	return nil
}

// Get returns the object for id and whether it was present. A missing id
// is a normal, non-error outcome.
func (r *Registry) Get(id ID) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// Acquire marks one logical holder as taking a reference to id, so a
// subsequent Remove will fail with ErrInUse until every holder releases.
// It is a no-op (not an error) if id is absent, matching Get's semantics.
func (r *Registry) Acquire(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.refCount++
	}
}

// Release drops one logical holder recorded by Acquire.
func (r *Registry) Release(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.refCount > 0 {
		e.refCount--
	}
}

// Remove deletes id iff no outstanding reference remains. Returns
// ErrInUse if a task still holds the object; returns (false, nil) if the
// id was never present.
func (r *Registry) Remove(id ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false, nil
	}
	if e.refCount > 0 {
		return false, ErrInUse
	}
	delete(r.entries, id)
	return true, nil
}

// Iter returns a snapshot slice of every stored object, in no defined
// order, copied under the read lock. It is safe under concurrent
// insertions; entries added after the snapshot is taken do not appear.
func (r *Registry) Iter() []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Object, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.obj)
	}
	return out
}

// Len reports the number of currently stored objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
