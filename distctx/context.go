// Package distctx implements the rank-parallel collective primitives
// (broadcast, all-to-all, reduce, point-to-point, barrier) that
// rank-parallel modules use atop a transport.ClusterTransport. A
// Context is deliberately bound to its own transport instance, kept
// separate from the one the message router uses for application
// traffic: both sides call Receive on whatever transport they hold,
// and sharing one instance between synchronous collective rounds and
// asynchronous envelope delivery would let either consumer steal the
// other's inbound bytes.
package distctx

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"vispipe.io/engine/transport"
)

// Context exposes this process's rank-parallel identity and the
// collectives built on top of its cluster transport.
type Context struct {
	transport transport.ClusterTransport

	mu      sync.Mutex
	pending map[int][][]byte // backlog of unmatched ReceiveFrom arrivals, keyed by source rank
}

// New wraps t as a distributed context. t should not be shared with a
// message.Router in the same process; give the router its own
// transport instance.
func New(t transport.ClusterTransport) *Context {
	return &Context{transport: t, pending: make(map[int][][]byte)}
}

// Rank returns this process's rank.
func (d *Context) Rank() int { return d.transport.Rank() }

// Size returns the cluster's world size.
func (d *Context) Size() int { return d.transport.Size() }

// Barrier blocks until every rank has called Barrier.
func (d *Context) Barrier(ctx context.Context) error {
	return d.transport.Barrier(ctx)
}

// Close releases the underlying transport.
func (d *Context) Close() error { return d.transport.Close() }

// Broadcast has every rank return root's value: the root serializes
// value once and broadcasts it, every other rank receives and
// deserializes. A single-rank world returns value unchanged without
// touching the transport.
func Broadcast[T any](ctx context.Context, d *Context, root int, value T) (T, error) {
	if d.transport.Size() <= 1 {
		return value, nil
	}
	if d.transport.Rank() == root {
		data, err := encodeValue(value)
		if err != nil {
			return value, fmt.Errorf("distctx: broadcast: %w", err)
		}
		if err := d.transport.Broadcast(ctx, data); err != nil {
			return value, fmt.Errorf("distctx: broadcast: %w", err)
		}
		return value, nil
	}

	data, err := d.receiveAny(ctx)
	if err != nil {
		return value, fmt.Errorf("distctx: broadcast: %w", err)
	}
	var out T
	if err := decodeValue(data, &out); err != nil {
		return value, fmt.Errorf("distctx: broadcast: %w", err)
	}
	return out, nil
}

// AllToAll has rank i send sendbuf[j] to rank j and collect rank j's
// sendbuf[i] in the returned recvbuf[j]. len(sendbuf) must equal
// d.Size(). Degenerates to pairwise sends concurrently fanned out via
// an errgroup, matched against receives read in arrival order.
func AllToAll[T any](ctx context.Context, d *Context, sendbuf []T) ([]T, error) {
	size := d.transport.Size()
	rank := d.transport.Rank()
	if len(sendbuf) != size {
		return nil, fmt.Errorf("distctx: all_to_all: sendbuf has %d entries, want %d", len(sendbuf), size)
	}

	recvbuf := make([]T, size)
	recvbuf[rank] = sendbuf[rank]
	if size <= 1 {
		return recvbuf, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for j := 0; j < size; j++ {
		if j == rank {
			continue
		}
		j := j
		g.Go(func() error {
			data, err := encodeValue(sendbuf[j])
			if err != nil {
				return err
			}
			return d.transport.Send(gctx, j, data)
		})
	}

	for i := 0; i < size-1; i++ {
		data, fromRank, err := d.receiveAnyTagged(ctx)
		if err != nil {
			return nil, fmt.Errorf("distctx: all_to_all: %w", err)
		}
		var v T
		if err := decodeValue(data, &v); err != nil {
			return nil, fmt.Errorf("distctx: all_to_all: %w", err)
		}
		recvbuf[fromRank] = v
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("distctx: all_to_all: %w", err)
	}
	return recvbuf, nil
}

// Reduce folds every non-root rank's local value into root's under op,
// left-to-right in rank order (skipping root itself), regardless of
// the order replies physically arrive in — required so non-associative
// op still produces a result independent of network scheduling. Only
// the root's returned ok is true; non-root callers get back local
// unchanged with ok false.
func Reduce[T any](ctx context.Context, d *Context, root int, local T, op func(acc, next T) T) (result T, ok bool, err error) {
	rank := d.transport.Rank()
	size := d.transport.Size()

	if rank != root {
		data, encErr := encodeValue(local)
		if encErr != nil {
			return local, false, fmt.Errorf("distctx: reduce: %w", encErr)
		}
		if sendErr := d.transport.Send(ctx, root, data); sendErr != nil {
			return local, false, fmt.Errorf("distctx: reduce: %w", sendErr)
		}
		return local, false, nil
	}

	received := make(map[int]T, size-1)
	for i := 0; i < size-1; i++ {
		data, fromRank, recvErr := d.receiveAnyTagged(ctx)
		if recvErr != nil {
			return local, true, fmt.Errorf("distctx: reduce: %w", recvErr)
		}
		var v T
		if decErr := decodeValue(data, &v); decErr != nil {
			return local, true, fmt.Errorf("distctx: reduce: %w", decErr)
		}
		received[fromRank] = v
	}

	acc := local
	for rk := 0; rk < size; rk++ {
		if rk == root {
			continue
		}
		acc = op(acc, received[rk])
	}
	return acc, true, nil
}

// SendTo serializes value and sends it to dest, the typed counterpart
// of ReceiveFrom.
func SendTo[T any](ctx context.Context, d *Context, dest int, value T) error {
	data, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("distctx: send_to: %w", err)
	}
	if err := d.transport.Send(ctx, dest, data); err != nil {
		return fmt.Errorf("distctx: send_to: %w", err)
	}
	return nil
}

// ReceiveFrom blocks until a value sent via SendTo from src arrives,
// deserializing into T. Arrivals from other ranks are buffered per
// source so a later ReceiveFrom(src) still finds them; mixing
// ReceiveFrom with Broadcast/AllToAll/Reduce across the same pair of
// ranks in the same round is not supported — per the package's
// ordering requirement, every rank must invoke collectives in the same
// order.
func ReceiveFrom[T any](ctx context.Context, d *Context, src int) (T, error) {
	var out T
	data, err := d.receiveFromRank(ctx, src)
	if err != nil {
		return out, fmt.Errorf("distctx: receive_from: %w", err)
	}
	if err := decodeValue(data, &out); err != nil {
		return out, fmt.Errorf("distctx: receive_from: %w", err)
	}
	return out, nil
}

// receiveAny returns the next arrival regardless of sender.
func (d *Context) receiveAny(ctx context.Context) ([]byte, error) {
	data, _, err := d.receiveAnyTagged(ctx)
	return data, err
}

// receiveAnyTagged returns the next arrival and the rank it came from.
func (d *Context) receiveAnyTagged(ctx context.Context) ([]byte, int, error) {
	r, err := d.transport.Receive(ctx)
	if err != nil {
		return nil, 0, err
	}
	return r.Data, r.Rank, nil
}

// receiveFromRank returns the next arrival specifically from src,
// consulting (and replenishing) the per-source backlog built up by
// previous mismatched arrivals.
func (d *Context) receiveFromRank(ctx context.Context, src int) ([]byte, error) {
	d.mu.Lock()
	if q := d.pending[src]; len(q) > 0 {
		data := q[0]
		d.pending[src] = q[1:]
		d.mu.Unlock()
		return data, nil
	}
	d.mu.Unlock()

	for {
		r, err := d.transport.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if r.Rank == src {
			return r.Data, nil
		}
		d.mu.Lock()
		d.pending[r.Rank] = append(d.pending[r.Rank], r.Data)
		d.mu.Unlock()
	}
}
