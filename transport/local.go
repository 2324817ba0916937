package transport

import (
	"context"
	"fmt"
	"sync"
)

// Local is an in-process transport.ClusterTransport connecting a fixed
// set of ranks through buffered Go channels, for single-process runs and
// tests that need a real transport without a broker.
type Local struct {
	rank, size int
	inboxes    []chan Received
	barrier    *localBarrier
}

// localBarrier implements a sense-reversing counting barrier shared by
// every rank constructed from the same NewLocalCluster call.
type localBarrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	sense   bool
}

func newLocalBarrier() *localBarrier {
	b := &localBarrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// NewLocalCluster builds size Local transports, one per rank, all wired
// to each other.
func NewLocalCluster(size int) []*Local {
	inboxes := make([]chan Received, size)
	for i := range inboxes {
		inboxes[i] = make(chan Received, 256)
	}
	barrier := newLocalBarrier()
	cluster := make([]*Local, size)
	for rank := range cluster {
		cluster[rank] = &Local{rank: rank, size: size, inboxes: inboxes, barrier: barrier}
	}
	return cluster
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.size }

func (l *Local) Send(ctx context.Context, dest int, data []byte) error {
	if dest < 0 || dest >= l.size {
		return fmt.Errorf("transport: local: rank %d out of range [0,%d)", dest, l.size)
	}
	select {
	case l.inboxes[dest] <- Received{Rank: l.rank, Data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Receive(ctx context.Context) (Received, error) {
	select {
	case r := <-l.inboxes[l.rank]:
		return r, nil
	case <-ctx.Done():
		return Received{}, ctx.Err()
	}
}

func (l *Local) Broadcast(ctx context.Context, data []byte) error {
	for rank := 0; rank < l.size; rank++ {
		if rank == l.rank {
			continue
		}
		if err := l.Send(ctx, rank, data); err != nil {
			return err
		}
	}
	return nil
}

// Barrier blocks until every rank constructed by the same
// NewLocalCluster call has called Barrier, using a sense-reversing
// counting barrier so it can be invoked repeatedly.
func (l *Local) Barrier(ctx context.Context) error {
	if l.size <= 1 {
		return nil
	}
	b := l.barrier
	b.mu.Lock()
	mySense := !b.sense
	b.arrived++
	if b.arrived == l.size {
		b.arrived = 0
		b.sense = mySense
		b.cond.Broadcast()
		b.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	go func() {
		b.mu.Lock()
		for b.sense != mySense {
			b.cond.Wait()
		}
		b.mu.Unlock()
		close(done)
	}()
	b.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Close() error { return nil }
