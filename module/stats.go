package module

import (
	"sync/atomic"
	"time"
)

// Stats holds the observable monotonic counters a module instance
// accumulates across its lifetime. All fields are safe for concurrent
// use; callers read a point-in-time Snapshot rather than touching the
// atomics directly.
type Stats struct {
	objectsCreated   atomic.Int64
	objectsProcessed atomic.Int64
	errors           atomic.Int64
	computeCount     atomic.Int64
	totalCompute     atomic.Int64 // nanoseconds
}

// Snapshot is an immutable point-in-time copy of Stats.
type Snapshot struct {
	ObjectsCreated   int64
	ObjectsProcessed int64
	Errors           int64
	ComputeCount     int64
	TotalCompute     time.Duration
}

// RecordObjectsCreated adds n to the created-object counter.
func (s *Stats) RecordObjectsCreated(n int) {
	s.objectsCreated.Add(int64(n))
}

// RecordObjectsProcessed adds n to the processed-object counter.
func (s *Stats) RecordObjectsProcessed(n int) {
	s.objectsProcessed.Add(int64(n))
}

// RecordError increments the error counter.
func (s *Stats) RecordError() {
	s.errors.Add(1)
}

// RecordCompute records one compute() invocation's elapsed time.
func (s *Stats) RecordCompute(elapsed time.Duration) {
	s.computeCount.Add(1)
	s.totalCompute.Add(int64(elapsed))
}

// Snapshot returns the current values of every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ObjectsCreated:   s.objectsCreated.Load(),
		ObjectsProcessed: s.objectsProcessed.Load(),
		Errors:           s.errors.Load(),
		ComputeCount:     s.computeCount.Load(),
		TotalCompute:     time.Duration(s.totalCompute.Load()),
	}
}
