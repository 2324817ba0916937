// Package arena implements the shared-memory region allocator that backs
// cross-process object sharing on a single host, plus a Redis-backed
// rendezvous service that lets a second process recover another process's
// object table by arena name.
package arena

import (
	"fmt"
	"sort"
)

// extent is a disjoint (offset, length) span of the arena's byte region.
type extent struct {
	offset uint64
	length uint64
}

// allocator tracks live allocations and the free extents that partition
// the remainder of the region. It implements first-fit allocation with
// block splitting and coalescing of offset-adjacent free extents on
// deallocation. It holds no lock of its own; Arena serializes access to
// it under its own mutex, acquired before the object-metadata lock.
type allocator struct {
	capacity    uint64
	allocations map[uint64]uint64 // offset -> length
	free        []extent          // sorted by offset, maximally coalesced
}

func newAllocator(capacity uint64) *allocator {
	return &allocator{
		capacity:    capacity,
		allocations: make(map[uint64]uint64),
		free:        []extent{{offset: 0, length: capacity}},
	}
}

// allocate finds the first free extent able to hold size bytes, splits it
// if there is leftover space, and records the allocation. Returns
// ErrOutOfMemory if no extent is large enough; no state is mutated on
// failure.
func (a *allocator) allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("arena: zero-length allocation")
	}
	for i, e := range a.free {
		if e.length >= size {
			a.free = append(a.free[:i], a.free[i+1:]...)
			if e.length > size {
				a.insertFree(extent{offset: e.offset + size, length: e.length - size})
			}
			a.allocations[e.offset] = size
			return e.offset, nil
		}
	}
	return 0, ErrOutOfMemory
}

// insertFree inserts e into the free list in offset order without
// coalescing; coalesce must be called afterward.
func (a *allocator) insertFree(e extent) {
	idx := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset >= e.offset })
	a.free = append(a.free, extent{})
	copy(a.free[idx+1:], a.free[idx:])
	a.free[idx] = e
}

// deallocate returns the extent at offset to the free list and coalesces
// it with its offset-adjacent neighbours. Returns an error if offset was
// not a recorded allocation of matching length — a hard invariant
// violation surfaced as arena corruption.
func (a *allocator) deallocate(offset, length uint64) error {
	got, ok := a.allocations[offset]
	if !ok {
		return fmt.Errorf("%w: offset %d not allocated", ErrCorruption, offset)
	}
	if got != length {
		return fmt.Errorf("%w: offset %d allocated with length %d, got %d", ErrCorruption, offset, got, length)
	}
	delete(a.allocations, offset)
	a.insertFree(extent{offset: offset, length: length})
	a.coalesce()
	return nil
}

// coalesce merges adjacent free extents. free is kept sorted by offset by
// insertFree, so a single left-to-right pass suffices.
func (a *allocator) coalesce() {
	i := 0
	for i+1 < len(a.free) {
		cur, next := a.free[i], a.free[i+1]
		if cur.offset+cur.length == next.offset {
			a.free[i].length += next.length
			a.free = append(a.free[:i+1], a.free[i+2:]...)
		} else {
			i++
		}
	}
}

func (a *allocator) used() uint64 {
	var sum uint64
	for _, length := range a.allocations {
		sum += length
	}
	return sum
}

func (a *allocator) freeBytes() uint64 {
	var sum uint64
	for _, e := range a.free {
		sum += e.length
	}
	return sum
}

// noAdjacentFree reports whether any two entries in the free list are
// offset-adjacent — used by tests to assert full coalescing.
func (a *allocator) noAdjacentFree() bool {
	for i := 0; i+1 < len(a.free); i++ {
		if a.free[i].offset+a.free[i].length == a.free[i+1].offset {
			return false
		}
	}
	return true
}
