// Package module defines the capability set every pipeline module
// implements (parameters, ports, input acceptance, compute, cancel,
// stats) and the state machine the scheduler drives it through, plus a
// factory-based registry modules are created from by kind name.
package module

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vispipe.io/engine/object"
)

// State is a module instance's position in its lifecycle.
type State uint8

const (
	StateInitializing State = iota
	StateReady
	StateExecuting
	StateCompleted
	StateError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Info is a module instance's static description.
type Info struct {
	ID          uint32
	DisplayName string
	Description string
	Category    string
	Rank        int
	WorldSize   int
	State       State
}

// ErrUnknownPort is returned by SetInput when the named port was not
// declared.
var ErrUnknownPort = errors.New("module: unknown port")

// ErrAlreadyExecuting is returned when the scheduler attempts to start a
// second concurrent Compute on the same module instance.
var ErrAlreadyExecuting = errors.New("module: already executing")

// Module is the capability set the scheduler holds polymorphically over
// every module variant.
type Module interface {
	Info() Info
	Parameters() *ParameterSet
	Ports() *PortSet

	// SetInput accepts object references for a declared input port.
	// Fails with ErrUnknownPort if port is not a declared input.
	SetInput(port string, objects []object.ID) error

	// Compute performs the module's work, returning a mapping from
	// output-port name to the objects published on that port. It must
	// observe ctx cancellation at its suspension points and return
	// promptly once cancelled.
	Compute(ctx context.Context, cctx ComputeContext) (map[string][]*object.Object, error)

	// Cancel requests abort of an in-flight or future Compute. Idempotent.
	Cancel()

	Stats() Snapshot
}

// Base provides the bookkeeping every concrete module variant shares:
// state machine enforcement, parameter/port sets, cancellation flag and
// stats. Concrete modules embed Base and implement Compute themselves.
type Base struct {
	mu    sync.Mutex
	info  Info
	state State

	params *ParameterSet
	ports  *PortSet
	inputs map[string][]object.ID

	cancelled bool
	stats     Stats
}

// NewBase constructs a Base in StateInitializing, then immediately
// transitions to StateReady (a module with no async setup is ready as
// soon as it is constructed).
func NewBase(info Info) *Base {
	info.State = StateReady
	return &Base{
		info:   info,
		state:  StateReady,
		params: NewParameterSet(),
		ports:  NewPortSet(),
		inputs: make(map[string][]object.ID),
	}
}

// Info returns a snapshot of the module's static description with the
// current state filled in.
func (b *Base) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	info := b.info
	info.State = b.state
	return info
}

// Parameters returns the module's declared parameter set.
func (b *Base) Parameters() *ParameterSet { return b.params }

// Ports returns the module's declared port set.
func (b *Base) Ports() *PortSet { return b.ports }

// SetInput records objects as the current contents of the named input
// port. Fails with ErrUnknownPort if port was not declared as an input.
func (b *Base) SetInput(port string, objects []object.ID) error {
	p, ok := b.ports.Get(port)
	if !ok || p.Direction != DirectionInput {
		return fmt.Errorf("%w: %s", ErrUnknownPort, port)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs[port] = objects
	return nil
}

// Input returns the object ids most recently set for the named input
// port.
func (b *Base) Input(port string) []object.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs[port]
}

// BeginCompute transitions ready -> executing. Returns
// ErrAlreadyExecuting if the module is already executing, enforcing
// at-most-one concurrent Compute per instance.
func (b *Base) BeginCompute() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateExecuting {
		return ErrAlreadyExecuting
	}
	b.state = StateExecuting
	return nil
}

// FinishCompute transitions executing -> one of completed/error/cancelled
// depending on err and whether Cancel was called during the run.
func (b *Base) FinishCompute(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err != nil:
		b.state = StateError
		b.stats.RecordError()
	case b.cancelled:
		b.state = StateCancelled
	default:
		b.state = StateCompleted
	}
}

// Cancel requests abort. Idempotent; safe to call multiple times or
// before Compute has started.
func (b *Base) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = true
}

// Cancelled reports whether Cancel has been requested.
func (b *Base) Cancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// Stats returns a snapshot of the module's observable counters.
func (b *Base) Stats() Snapshot { return b.stats.Snapshot() }

// RecordStats exposes the embedded Stats to concrete modules that want
// to record object counts from within Compute.
func (b *Base) RecordStats() *Stats { return &b.stats }
