package arena

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vispipe.io/engine/object"
)

func TestArenaStoreGetRemove(t *testing.T) {
	a := New(Config{Capacity: 4096, Name: "t"})
	obj := object.New(object.KindPoints, []byte("hello"), object.Meta{})

	require.NoError(t, a.StoreObject(obj))

	got, ok, err := a.GetObject(obj.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, obj.ID(), got.ID())
	assert.Equal(t, obj.Payload(), got.Payload())

	removed, err := a.RemoveObject(obj.ID())
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err = a.GetObject(obj.ID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArenaRemoveAbsentIsNotError(t *testing.T) {
	a := New(Config{Capacity: 1024})
	removed, err := a.RemoveObject(object.NewID())
	assert.NoError(t, err)
	assert.False(t, removed)
}

func TestArenaOutOfMemory(t *testing.T) {
	a := New(Config{Capacity: 16})
	big := object.New(object.KindPoints, make([]byte, 4096), object.Meta{})
	err := a.StoreObject(big)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	// failed allocation must not have mutated any state
	stats := a.Stats()
	assert.Equal(t, uint64(0), stats.Used)
	assert.Equal(t, uint64(16), stats.Free)
}

func TestAllocatorSplitAndCoalesce(t *testing.T) {
	al := newAllocator(100)

	off1, err := al.allocate(30)
	require.NoError(t, err)
	off2, err := al.allocate(20)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off1)
	assert.Equal(t, uint64(30), off2)
	assert.Equal(t, uint64(50), al.used())
	assert.Equal(t, uint64(50), al.freeBytes())

	require.NoError(t, al.deallocate(off1, 30))
	require.NoError(t, al.deallocate(off2, 20))

	assert.True(t, al.noAdjacentFree())
	assert.Equal(t, uint64(0), al.used())
	assert.Equal(t, uint64(100), al.freeBytes())
	require.Len(t, al.free, 1)
	assert.Equal(t, extent{offset: 0, length: 100}, al.free[0])
}

func TestAllocatorDeallocateCorruption(t *testing.T) {
	al := newAllocator(64)

	err := al.deallocate(0, 8)
	assert.ErrorIs(t, err, ErrCorruption)

	off, err := al.allocate(8)
	require.NoError(t, err)
	err = al.deallocate(off, 16)
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestArenaStatsInvariant(t *testing.T) {
	a := New(Config{Capacity: 4096})
	for i := 0; i < 10; i++ {
		obj := object.New(object.KindPoints, make([]byte, 50), object.Meta{})
		require.NoError(t, a.StoreObject(obj))
	}
	stats := a.Stats()
	assert.Equal(t, stats.Total, stats.Used+stats.Free)
	assert.Equal(t, 10, stats.ObjectCount)
}

// TestArenaStressRandomAllocation exercises 10,000 objects of random size
// in [1, 4096], deallocates every other one, and checks that free space
// equals capacity minus used space and that no two free extents remain
// offset-adjacent (full coalescing holds under churn).
func TestArenaStressRandomAllocation(t *testing.T) {
	const capacity = 64 * 1024 * 1024
	const n = 10000

	a := New(Config{Capacity: capacity})
	rng := rand.New(rand.NewSource(1))

	ids := make([]object.ID, 0, n)
	for i := 0; i < n; i++ {
		size := rng.Intn(4096) + 1
		obj := object.New(object.KindPoints, make([]byte, size), object.Meta{})
		if err := a.StoreObject(obj); err != nil {
			// capacity exhausted partway through is acceptable for this
			// stress test; stop feeding new objects once that happens.
			break
		}
		ids = append(ids, obj.ID())
	}
	require.NotEmpty(t, ids)

	for i, id := range ids {
		if i%2 == 0 {
			removed, err := a.RemoveObject(id)
			require.NoError(t, err)
			require.True(t, removed)
		}
	}

	stats := a.Stats()
	assert.Equal(t, stats.Total, stats.Used+stats.Free, "used+free must equal total")
	assert.Equal(t, capacity-stats.Used, stats.Free)
	assert.True(t, a.noAdjacentFreeExtents(), "free list must be fully coalesced")
}
