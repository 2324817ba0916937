// Package transport provides the cluster transport abstraction the
// message router and the distributed context collectives send bytes
// through, plus the AMQP-backed implementation and an in-memory one for
// single-process tests.
package transport

import "context"

// Received is one inbound envelope surfaced by ClusterTransport.Receive,
// tagged with the rank it arrived from.
type Received struct {
	Rank int
	Data []byte
}

// ClusterTransport is the message-passing abstraction the core depends
// on: send bytes to one rank, receive whatever has arrived, broadcast to
// every other rank, and synchronize at a barrier. A module id and a rank
// occupy the same address space in this core: routing a message for a
// module id N that is not local means sending it to rank N.
type ClusterTransport interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dest int, data []byte) error
	Receive(ctx context.Context) (Received, error)
	Broadcast(ctx context.Context, data []byte) error
	Barrier(ctx context.Context) error
	Close() error
}
