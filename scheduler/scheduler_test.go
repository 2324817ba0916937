package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vispipe.io/engine/message"
	"vispipe.io/engine/module"
	"vispipe.io/engine/object"
	"vispipe.io/engine/param"
	"vispipe.io/engine/taskgraph"
)

func newTestRig(t *testing.T, mods map[uint32]module.Module, conns []Connection) (*taskgraph.Graph, *Scheduler) {
	t.Helper()
	graph := taskgraph.New()
	objects := object.NewRegistry()
	router := message.NewRouter()
	for id := range mods {
		router.RegisterModule(id)
	}
	provider := func(id uint32) (module.Module, bool) {
		m, ok := mods[id]
		return m, ok
	}
	sched := New(graph, objects, router, provider, conns, Config{MaxConcurrent: 4})
	return graph, sched
}

// S1: a single source module runs to completion with no dependencies.
func TestExecuteAllSingleModuleSuccess(t *testing.T) {
	src, err := module.NewSource(1, 0, 1)
	require.NoError(t, err)
	require.NoError(t, src.Parameters().SetValue("count", param.Int32Value(2)))

	graph, sched := newTestRig(t, map[uint32]module.Module{1: src}, nil)
	require.NoError(t, graph.AddTask(taskgraph.NewTask(1, 1, module.ComputeContext{ModuleID: 1}, 0, nil)))

	require.NoError(t, sched.ExecuteAll(context.Background()))

	results := sched.Results()
	require.Len(t, results, 1)
	assert.True(t, results[1].Success)
	assert.Len(t, results[1].Outputs["out"], 2)
}

// S2: a linear source -> sink chain; the sink's task only becomes ready
// once the source's task completes, and ExecuteAll drains both. The
// sink must actually receive the source's published object ids as its
// "in" input, not merely run after it.
func TestExecuteAllLinearChain(t *testing.T) {
	src, err := module.NewSource(1, 0, 1)
	require.NoError(t, err)
	require.NoError(t, src.Parameters().SetValue("count", param.Int32Value(3)))
	sink, err := module.NewSink(2, 0, 1)
	require.NoError(t, err)

	conns := []Connection{{FromModule: 1, FromPort: "out", ToModule: 2, ToPort: "in"}}
	graph, sched := newTestRig(t, map[uint32]module.Module{1: src, 2: sink}, conns)
	require.NoError(t, graph.AddTask(taskgraph.NewTask(1, 1, module.ComputeContext{ModuleID: 1}, 0, nil)))
	require.NoError(t, graph.AddTask(taskgraph.NewTask(2, 2, module.ComputeContext{ModuleID: 2}, 0, []taskgraph.ID{1})))

	require.NoError(t, sched.ExecuteAll(context.Background()))

	results := sched.Results()
	require.Len(t, results, 2)
	assert.True(t, results[1].Success)
	assert.True(t, results[2].Success)

	require.Len(t, results[1].Outputs["out"], 3)
	assert.Equal(t, int64(3), sink.Stats().ObjectsProcessed,
		"sink must receive every object the source published on its connected port")
}

// Objects delivered to a downstream module's input are acquired in the
// registry while the receiving task runs and released when it settles:
// once ExecuteAll has drained, Remove must succeed. The refusal while
// the sink task is in flight is not observed by this test.
func TestExecuteAllReleasesInputObjectsAfterTask(t *testing.T) {
	src, err := module.NewSource(1, 0, 1)
	require.NoError(t, err)
	require.NoError(t, src.Parameters().SetValue("count", param.Int32Value(1)))
	sink, err := module.NewSink(2, 0, 1)
	require.NoError(t, err)

	conns := []Connection{{FromModule: 1, FromPort: "out", ToModule: 2, ToPort: "in"}}
	graph := taskgraph.New()
	objects := object.NewRegistry()
	router := message.NewRouter()
	router.RegisterModule(1)
	router.RegisterModule(2)
	mods := map[uint32]module.Module{1: src, 2: sink}
	provider := func(id uint32) (module.Module, bool) {
		m, ok := mods[id]
		return m, ok
	}
	sched := New(graph, objects, router, provider, conns, Config{MaxConcurrent: 4})

	require.NoError(t, graph.AddTask(taskgraph.NewTask(1, 1, module.ComputeContext{ModuleID: 1}, 0, nil)))
	require.NoError(t, graph.AddTask(taskgraph.NewTask(2, 2, module.ComputeContext{ModuleID: 2}, 0, []taskgraph.ID{1})))

	require.NoError(t, sched.ExecuteAll(context.Background()))

	results := sched.Results()
	require.Len(t, results, 2)
	require.Len(t, results[1].Outputs["out"], 1)
	id := results[1].Outputs["out"][0]

	removed, err := objects.Remove(id)
	require.NoError(t, err)
	assert.True(t, removed, "object must be removable once the holding task has completed and released it")
}

// S3: diamond dependency 1 -> {2,3} -> 4; the join task must only run
// after both branches complete, and all four tasks finish successfully.
func TestExecuteAllDiamondDependency(t *testing.T) {
	mods := map[uint32]module.Module{}
	src, err := module.NewSource(1, 0, 1)
	require.NoError(t, err)
	require.NoError(t, src.Parameters().SetValue("count", param.Int32Value(1)))
	mods[1] = src

	for _, id := range []uint32{2, 3} {
		id := id
		factory := module.NewFuncFactory("branch", []module.Port{
			{Name: "in", Direction: module.DirectionInput},
			{Name: "out", Direction: module.DirectionOutput},
		}, func(ctx context.Context, b *module.Base, cctx module.ComputeContext) (map[string][]*object.Object, error) {
			return map[string][]*object.Object{"out": {object.New(object.KindPlaceholder, nil, object.Meta{CreatorModule: cctx.ModuleID})}}, nil
		})
		m, err := factory(id, 0, 1)
		require.NoError(t, err)
		mods[id] = m
	}
	sink, err := module.NewSink(4, 0, 1)
	require.NoError(t, err)
	mods[4] = sink

	conns := []Connection{
		{FromModule: 1, FromPort: "out", ToModule: 2, ToPort: "in"},
		{FromModule: 1, FromPort: "out", ToModule: 3, ToPort: "in"},
		{FromModule: 2, FromPort: "out", ToModule: 4, ToPort: "in"},
		{FromModule: 3, FromPort: "out", ToModule: 4, ToPort: "in"},
	}
	graph, sched := newTestRig(t, mods, conns)
	require.NoError(t, graph.AddTask(taskgraph.NewTask(1, 1, module.ComputeContext{ModuleID: 1}, 0, nil)))
	require.NoError(t, graph.AddTask(taskgraph.NewTask(2, 2, module.ComputeContext{ModuleID: 2}, 0, []taskgraph.ID{1})))
	require.NoError(t, graph.AddTask(taskgraph.NewTask(3, 3, module.ComputeContext{ModuleID: 3}, 0, []taskgraph.ID{1})))
	require.NoError(t, graph.AddTask(taskgraph.NewTask(4, 4, module.ComputeContext{ModuleID: 4}, 0, []taskgraph.ID{2, 3})))

	require.NoError(t, sched.ExecuteAll(context.Background()))

	results := sched.Results()
	require.Len(t, results, 4)
	for id, r := range results {
		assert.Truef(t, r.Success, "task %d should have succeeded", id)
	}
}

// S4: a failing middle node must never let its dependent run.
func TestExecuteAllFailingMiddleNodeNeverRunsDependent(t *testing.T) {
	boom := errors.New("boom")
	failing := module.NewFuncFactory("failing", []module.Port{
		{Name: "out", Direction: module.DirectionOutput},
	}, func(ctx context.Context, b *module.Base, cctx module.ComputeContext) (map[string][]*object.Object, error) {
		return nil, boom
	})
	mid, err := failing(1, 0, 1)
	require.NoError(t, err)
	sink, err := module.NewSink(2, 0, 1)
	require.NoError(t, err)

	conns := []Connection{{FromModule: 1, FromPort: "out", ToModule: 2, ToPort: "in"}}
	graph, sched := newTestRig(t, map[uint32]module.Module{1: mid, 2: sink}, conns)
	require.NoError(t, graph.AddTask(taskgraph.NewTask(1, 1, module.ComputeContext{ModuleID: 1}, 0, nil)))
	require.NoError(t, graph.AddTask(taskgraph.NewTask(2, 2, module.ComputeContext{ModuleID: 2}, 0, []taskgraph.ID{1})))

	require.NoError(t, sched.ExecuteAll(context.Background()))

	results := sched.Results()
	require.Len(t, results, 1, "the dependent task must never run")
	assert.False(t, results[1].Success)
	assert.ErrorIs(t, results[1].Err, boom)

	task2, ok := graph.Get(2)
	require.True(t, ok)
	assert.Equal(t, taskgraph.StatusPending, task2.Status)
}

// S5: a module that never returns on its own must be interrupted once
// the workflow timeout fires, reporting ErrTimeout.
func TestExecuteAllWithTimeoutInterruptsHungModule(t *testing.T) {
	slow := module.NewFuncFactory("slow", nil, module.SleepUntilCancelled(10*time.Second))
	m, err := slow(1, 0, 1)
	require.NoError(t, err)

	graph, sched := newTestRig(t, map[uint32]module.Module{1: m}, nil)
	require.NoError(t, graph.AddTask(taskgraph.NewTask(1, 1, module.ComputeContext{ModuleID: 1}, 0, nil)))

	start := time.Now()
	err = sched.ExecuteAllWithTimeout(context.Background(), 30*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, elapsed, 2*time.Second)

	results := sched.Results()
	require.Len(t, results, 1)
	assert.False(t, results[1].Success)
}

// Cancel is idempotent and safe to call from multiple goroutines.
func TestCancelIsIdempotent(t *testing.T) {
	slow := module.NewFuncFactory("slow", nil, module.SleepUntilCancelled(time.Hour))
	m, err := slow(1, 0, 1)
	require.NoError(t, err)

	graph, sched := newTestRig(t, map[uint32]module.Module{1: m}, nil)
	require.NoError(t, graph.AddTask(taskgraph.NewTask(1, 1, module.ComputeContext{ModuleID: 1}, 0, nil)))

	done := make(chan error, 1)
	go func() { done <- sched.ExecuteAll(context.Background()) }()

	require.Eventually(t, func() bool { return len(graph.RunningIDs()) == 1 }, time.Second, time.Millisecond)

	sched.Cancel()
	sched.Cancel() // must not panic or double-broadcast

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ExecuteAll did not return after Cancel")
	}
}

