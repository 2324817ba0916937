package arena

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"vispipe.io/engine/object"
)

// Sentinel errors. ErrCorruption indicates an invariant violation (the
// recorded offset/length for an object no longer matches the allocator's
// bookkeeping) and is fatal to the owning process in production.
var (
	ErrOutOfMemory = errors.New("arena: out of memory")
	ErrCorruption  = errors.New("arena: corruption")
)

// Config configures a new Arena.
type Config struct {
	// Capacity is the total size in bytes of the backing region.
	Capacity uint64
	// Name identifies the region for cross-process attach; defaults to
	// "<prefix>_<pid>" when empty.
	Name string
}

func (c Config) nameOrDefault(prefix string) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("%s_%d", prefix, os.Getpid())
}

// record is the arena's bookkeeping entry for one stored object.
type record struct {
	offset uint64
	length uint64
	kind   object.Kind
}

// Arena is a contiguous byte region used to share serialized objects
// between co-located processes. The allocator (allocations/free list) is
// protected by allocMu; the objects index is protected by a separate
// objMu. Locks are always acquired allocator-before-objects to avoid
// deadlock, matching the fixed lock order required of every arena
// operation.
type Arena struct {
	name   string
	region []byte

	allocMu sync.Mutex
	alloc   *allocator

	objMu   sync.RWMutex
	objects map[object.ID]record
}

// Stats reports allocator-wide counters. used + free always equals total.
type Stats struct {
	Total       uint64
	Used        uint64
	Free        uint64
	ObjectCount int
}

// New creates a fresh arena with the given capacity, backed by an
// in-process byte slice. Region sharing across OS processes is provided
// by pairing New with a Rendezvous entry (see rendezvous.go); this layer
// only owns the allocator and the local byte region.
func New(cfg Config) *Arena {
	name := cfg.nameOrDefault("arena")
	return &Arena{
		name:    name,
		region:  make([]byte, cfg.Capacity),
		alloc:   newAllocator(cfg.Capacity),
		objects: make(map[object.ID]record),
	}
}

// Name returns the arena's rendezvous name.
func (a *Arena) Name() string { return a.name }

// StoreObject serializes obj, allocates len(bytes) in the region, copies
// the bytes in, and records {offset, length, kind} under the object's id.
// On OutOfMemory failure, no state is mutated.
func (a *Arena) StoreObject(obj *object.Object) error {
	data, err := object.Encode(obj)
	if err != nil {
		return fmt.Errorf("arena: serialize object: %w", err)
	}

	a.allocMu.Lock()
	offset, err := a.alloc.allocate(uint64(len(data)))
	if err != nil {
		a.allocMu.Unlock()
		return err
	}
	copy(a.region[offset:offset+uint64(len(data))], data)
	a.allocMu.Unlock()

	a.objMu.Lock()
	a.objects[obj.ID()] = record{offset: offset, length: uint64(len(data)), kind: obj.Kind()}
	a.objMu.Unlock()
	return nil
}

// GetObject looks up {offset, length}, copies length bytes out of the
// region, and deserializes a fresh Object. The copy is required because
// the region may be mapped read-write by other processes.
func (a *Arena) GetObject(id object.ID) (*object.Object, bool, error) {
	a.allocMu.Lock()
	a.objMu.RLock()
	rec, ok := a.objects[id]
	a.objMu.RUnlock()
	if !ok {
		a.allocMu.Unlock()
		return nil, false, nil
	}
	buf := make([]byte, rec.length)
	copy(buf, a.region[rec.offset:rec.offset+rec.length])
	a.allocMu.Unlock()

	obj, err := object.Decode(buf)
	if err != nil {
		return nil, false, fmt.Errorf("arena: deserialize object %s: %w", id, err)
	}
	return obj, true, nil
}

// RemoveObject deallocates the recorded extent and drops the object
// index entry, returning whether id was present. A missing allocator
// entry for a recorded object is an invariant violation (corruption), not
// an ordinary failure. allocMu is held for the whole operation so the
// lock order (allocator before object metadata) matches every other
// Arena method.
func (a *Arena) RemoveObject(id object.ID) (bool, error) {
	a.allocMu.Lock()
	defer a.allocMu.Unlock()

	a.objMu.Lock()
	rec, ok := a.objects[id]
	if !ok {
		a.objMu.Unlock()
		return false, nil
	}
	delete(a.objects, id)
	a.objMu.Unlock()

	if err := a.alloc.deallocate(rec.offset, rec.length); err != nil {
		return false, err
	}
	return true, nil
}

// Stats returns current allocator statistics. used + free always equals
// total, which this method's callers may assert as an invariant check.
func (a *Arena) Stats() Stats {
	a.allocMu.Lock()
	used := a.alloc.used()
	free := a.alloc.freeBytes()
	total := a.alloc.capacity
	a.allocMu.Unlock()

	a.objMu.RLock()
	count := len(a.objects)
	a.objMu.RUnlock()

	return Stats{Total: total, Used: used, Free: free, ObjectCount: count}
}

// noAdjacentFreeExtents exposes the allocator's coalescing invariant for
// stress tests without leaking the allocator type itself.
func (a *Arena) noAdjacentFreeExtents() bool {
	a.allocMu.Lock()
	defer a.allocMu.Unlock()
	return a.alloc.noAdjacentFree()
}
