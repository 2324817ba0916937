package module

import (
	"context"
	"time"

	"vispipe.io/engine/object"
	"vispipe.io/engine/param"
)

// Source is a zero-input module that publishes a configurable number of
// placeholder objects on its "out" port. It is the simplest module kind
// a workflow can use as a DAG root.
type Source struct {
	*Base
}

// NewSource registers a single int32 "count" parameter (default 1,
// bounded to [0, 1_000_000]) and one output port, "out".
func NewSource(id uint32, rank, worldSize int) (Module, error) {
	b := NewBase(Info{ID: id, DisplayName: "source", Category: "io", Rank: rank, WorldSize: worldSize})
	minCount, maxCount := int32(0), int32(1_000_000)
	_ = b.Parameters().Declare("count", "number of objects to emit", param.Int32Value(1),
		param.Type{Kind: param.KindInt32, MinInt32: &minCount, MaxInt32: &maxCount})
	b.Ports().Declare(Port{Name: "out", Direction: DirectionOutput})
	return &Source{Base: b}, nil
}

func (s *Source) Compute(ctx context.Context, cctx ComputeContext) (map[string][]*object.Object, error) {
	if err := s.BeginCompute(); err != nil {
		return nil, err
	}
	var computeErr error
	defer func() { s.FinishCompute(computeErr) }()

	p, _ := s.Parameters().Get("count")
	count := int(p.Value.Int32)

	outputs := make([]*object.Object, 0, count)
	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			computeErr = ctx.Err()
			return nil, computeErr
		default:
		}
		obj := object.New(object.KindPlaceholder, nil, object.Meta{
			CreatorModule: cctx.ModuleID,
			Timestep:      cctx.Timestep,
			Iteration:     cctx.Iteration,
		})
		outputs = append(outputs, obj)
	}
	s.RecordStats().RecordObjectsCreated(len(outputs))
	return map[string][]*object.Object{"out": outputs}, nil
}

// Filter is a one-input, one-output module that passes every object it
// receives on "in" through to "out" unchanged, recording them as
// processed. It stands in for transform-style modules in tests.
type Filter struct {
	*Base
	registry *object.Registry
}

// NewFilterFactory returns a Factory for filter modules that resolve
// their "in" port's object ids against reg to build their "out" output.
func NewFilterFactory(reg *object.Registry) Factory {
	return func(id uint32, rank, worldSize int) (Module, error) {
		b := NewBase(Info{ID: id, DisplayName: "filter", Category: "transform", Rank: rank, WorldSize: worldSize})
		b.Ports().Declare(Port{Name: "in", Direction: DirectionInput})
		b.Ports().Declare(Port{Name: "out", Direction: DirectionOutput})
		return &Filter{Base: b, registry: reg}, nil
	}
}

func (f *Filter) Compute(ctx context.Context, cctx ComputeContext) (map[string][]*object.Object, error) {
	if err := f.BeginCompute(); err != nil {
		return nil, err
	}
	var computeErr error
	defer func() { f.FinishCompute(computeErr) }()

	ids := f.Input("in")
	outputs := make([]*object.Object, 0, len(ids))
	for _, id := range ids {
		select {
		case <-ctx.Done():
			computeErr = ctx.Err()
			return nil, computeErr
		default:
		}
		if obj, ok := f.registry.Get(id); ok {
			outputs = append(outputs, obj)
		}
	}
	f.RecordStats().RecordObjectsProcessed(len(outputs))
	return map[string][]*object.Object{"out": outputs}, nil
}

// Sink is a one-input, zero-output terminal module. It records every
// object it receives as processed and publishes nothing.
type Sink struct {
	*Base
}

// NewSink declares a single input port, "in".
func NewSink(id uint32, rank, worldSize int) (Module, error) {
	b := NewBase(Info{ID: id, DisplayName: "sink", Category: "io", Rank: rank, WorldSize: worldSize})
	b.Ports().Declare(Port{Name: "in", Direction: DirectionInput})
	return &Sink{Base: b}, nil
}

func (s *Sink) Compute(ctx context.Context, cctx ComputeContext) (map[string][]*object.Object, error) {
	if err := s.BeginCompute(); err != nil {
		return nil, err
	}
	var computeErr error
	defer func() { s.FinishCompute(computeErr) }()

	ids := s.Input("in")
	s.RecordStats().RecordObjectsProcessed(len(ids))
	return nil, nil
}

// Func is a module whose Compute is supplied as a closure, for tests
// that need to simulate failure, cancellation-sensitivity or latency
// without writing a new concrete module type.
type Func struct {
	*Base
	fn func(ctx context.Context, b *Base, cctx ComputeContext) (map[string][]*object.Object, error)
}

// NewFuncFactory returns a Factory producing Func modules that declare
// the given ports and delegate Compute to fn.
func NewFuncFactory(displayName string, ports []Port, fn func(ctx context.Context, b *Base, cctx ComputeContext) (map[string][]*object.Object, error)) Factory {
	return func(id uint32, rank, worldSize int) (Module, error) {
		b := NewBase(Info{ID: id, DisplayName: displayName, Category: "test", Rank: rank, WorldSize: worldSize})
		for _, p := range ports {
			b.Ports().Declare(p)
		}
		return &Func{Base: b, fn: fn}, nil
	}
}

func (f *Func) Compute(ctx context.Context, cctx ComputeContext) (map[string][]*object.Object, error) {
	if err := f.BeginCompute(); err != nil {
		return nil, err
	}
	var computeErr error
	defer func() { f.FinishCompute(computeErr) }()
	outputs, err := f.fn(ctx, f.Base, cctx)
	computeErr = err
	return outputs, err
}

// SleepUntilCancelled is a convenience compute body for timeout tests:
// it sleeps for d or until ctx/cancel fires, whichever is first, then
// reports cancellation if one was observed.
func SleepUntilCancelled(d time.Duration) func(ctx context.Context, b *Base, cctx ComputeContext) (map[string][]*object.Object, error) {
	return func(ctx context.Context, b *Base, cctx ComputeContext) (map[string][]*object.Object, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
