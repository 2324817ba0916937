package message

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vispipe.io/engine/transport"
)

// ErrNoRoute is returned when an envelope's recipient is neither a
// locally registered module nor reachable through an attached transport.
var ErrNoRoute = errors.New("message: no route to recipient")

// Router registers per-module local queues and, optionally, a cluster
// transport for envelopes addressed off-process.
type Router struct {
	mu        sync.RWMutex
	queues    map[uint32]*Queue
	transport transport.ClusterTransport
}

// NewRouter returns a Router with no attached transport; it only
// delivers between locally registered modules.
func NewRouter() *Router {
	return &Router{queues: make(map[uint32]*Queue)}
}

// AttachTransport wires a cluster transport for off-process delivery.
func (r *Router) AttachTransport(t transport.ClusterTransport) {
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()
}

// RegisterModule creates and returns a fresh local inbox for moduleID.
// Registering the same id twice replaces the previous queue.
func (r *Router) RegisterModule(moduleID uint32) *Queue {
	q := NewQueue()
	r.mu.Lock()
	r.queues[moduleID] = q
	r.mu.Unlock()
	return q
}

// Queue returns moduleID's local inbox, if one is registered.
func (r *Router) Queue(moduleID uint32) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[moduleID]
	return q, ok
}

// Deregister closes and removes moduleID's local inbox, if any.
func (r *Router) Deregister(moduleID uint32) {
	r.mu.Lock()
	q, ok := r.queues[moduleID]
	delete(r.queues, moduleID)
	r.mu.Unlock()
	if ok {
		q.Close()
	}
}

// RouteMessage implements the four-step dispatch: local queue, remote
// rank via transport, broadcast to every rank and every local queue, or
// NoRoute.
func (r *Router) RouteMessage(ctx context.Context, env *Envelope) error {
	recipient := env.Message.Recipient

	r.mu.RLock()
	q, local := r.queues[recipient]
	t := r.transport
	r.mu.RUnlock()

	if local {
		q.Send(env)
		return nil
	}

	if recipient != BroadcastRecipient {
		if t == nil {
			return fmt.Errorf("%w: module %d", ErrNoRoute, recipient)
		}
		data, err := Encode(env)
		if err != nil {
			return fmt.Errorf("message: route: %w", err)
		}
		return t.Send(ctx, int(recipient), data)
	}

	// Broadcast: fan out over the transport (if any) and to every local
	// queue, including modules registered after this call started is not
	// guaranteed — a snapshot of the registry at call time is used.
	if t != nil {
		data, err := Encode(env)
		if err != nil {
			return fmt.Errorf("message: route: %w", err)
		}
		if err := t.Broadcast(ctx, data); err != nil {
			return fmt.Errorf("message: route: %w", err)
		}
	}

	r.mu.RLock()
	targets := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		targets = append(targets, q)
	}
	r.mu.RUnlock()
	for _, q := range targets {
		q.Send(env)
	}
	return nil
}

// ProcessMessages drains one pending inbound envelope from the cluster
// transport, if attached, and re-routes it locally. A nil transport or
// an empty inbox is not an error. Intended to be polled by the
// scheduler's event loop.
func (r *Router) ProcessMessages(ctx context.Context) error {
	r.mu.RLock()
	t := r.transport
	r.mu.RUnlock()
	if t == nil {
		return nil
	}

	received, err := t.Receive(ctx)
	if err != nil {
		return fmt.Errorf("message: process: %w", err)
	}
	if received.Data == nil {
		return nil
	}

	env, err := Decode(received.Data)
	if err != nil {
		// Unknown kind-tag or malformed payload: discard it and route an
		// Error message addressed to SystemModule, which is also the
		// broadcast recipient, so it reaches every local queue and the
		// transport's other ranks, rather than failing the loop.
		errEnv := &Envelope{Message: New(SystemModule, SystemModule, ErrorBody{
			Module: SystemModule,
			Text:   fmt.Sprintf("discarded unroutable envelope: %v", err),
		})}
		return r.RouteMessage(ctx, errEnv)
	}
	return r.RouteMessage(ctx, env)
}
