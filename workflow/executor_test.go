package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vispipe.io/engine/message"
	"vispipe.io/engine/module"
	"vispipe.io/engine/object"
	"vispipe.io/engine/param"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	registry := module.NewRegistry()
	registry.RegisterFactory("source", module.NewSource)
	registry.RegisterFactory("sink", module.NewSink)
	objects := object.NewRegistry()
	router := message.NewRouter()
	return New(registry, objects, router, Config{MaxConcurrent: 4})
}

// S2 at the workflow layer: a source feeding a sink through a declared
// connection, with no explicit module-level dependency.
func TestExecuteWorkflowLinearChainSucceeds(t *testing.T) {
	e := newTestExecutor(t)
	spec := WorkflowSpec{
		ID: "wf-linear",
		Modules: []ModuleSpec{
			{ID: 1, Kind: "source", Parameters: map[string]param.Value{"count": param.Int32Value(2)}},
			{ID: 2, Kind: "sink"},
		},
		Connections: []ConnectionSpec{{FromModule: 1, FromPort: "out", ToModule: 2, ToPort: "in"}},
	}

	result, err := e.ExecuteWorkflow(context.Background(), spec, 0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Tasks, 2)

	status, err := e.WorkflowStatus("wf-linear")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, 2, status.TasksCompleted)
}

func TestExecuteWorkflowUnknownKindFails(t *testing.T) {
	e := newTestExecutor(t)
	spec := WorkflowSpec{ID: "wf-bad", Modules: []ModuleSpec{{ID: 1, Kind: "nope"}}}

	_, err := e.ExecuteWorkflow(context.Background(), spec, 0)
	assert.Error(t, err)

	status, serr := e.WorkflowStatus("wf-bad")
	require.NoError(t, serr)
	assert.Equal(t, StatusFailed, status.Status)
}

func TestExecuteWorkflowRejectsDuplicateID(t *testing.T) {
	e := newTestExecutor(t)
	spec := WorkflowSpec{ID: "wf-dup", Modules: []ModuleSpec{{ID: 1, Kind: "source"}}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.ExecuteWorkflow(context.Background(), spec, 0)
	}()
	<-done

	_, err := e.ExecuteWorkflow(context.Background(), WorkflowSpec{ID: "wf-dup", Modules: []ModuleSpec{{ID: 1, Kind: "sink"}}}, 0)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	e.RemoveWorkflow("wf-dup")
	_, err = e.WorkflowStatus("wf-dup")
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

// S5 at the workflow layer: a hung module is interrupted by the
// workflow's timeout and the workflow is reported as failed.
func TestExecuteWorkflowTimeoutFailsWorkflow(t *testing.T) {
	registry := module.NewRegistry()
	registry.RegisterFactory("slow", module.NewFuncFactory("slow", nil, module.SleepUntilCancelled(10*time.Second)))
	objects := object.NewRegistry()
	router := message.NewRouter()
	e := New(registry, objects, router, Config{MaxConcurrent: 2})

	spec := WorkflowSpec{ID: "wf-timeout", Modules: []ModuleSpec{{ID: 1, Kind: "slow"}}}
	result, err := e.ExecuteWorkflow(context.Background(), spec, 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, result.Success)

	status, serr := e.WorkflowStatus("wf-timeout")
	require.NoError(t, serr)
	assert.Equal(t, StatusFailed, status.Status)
}

func TestCancelWorkflowStopsRunningTasks(t *testing.T) {
	registry := module.NewRegistry()
	registry.RegisterFactory("slow", module.NewFuncFactory("slow", nil, module.SleepUntilCancelled(time.Hour)))
	objects := object.NewRegistry()
	router := message.NewRouter()
	e := New(registry, objects, router, Config{MaxConcurrent: 2})

	spec := WorkflowSpec{ID: "wf-cancel", Modules: []ModuleSpec{{ID: 1, Kind: "slow"}}}

	resultCh := make(chan *Result, 1)
	go func() {
		r, err := e.ExecuteWorkflow(context.Background(), spec, 0)
		require.NoError(t, err)
		resultCh <- r
	}()

	require.Eventually(t, func() bool {
		status, err := e.WorkflowStatus("wf-cancel")
		return err == nil && status.Status == StatusRunning
	}, time.Second, time.Millisecond)

	require.NoError(t, e.CancelWorkflow("wf-cancel"))

	select {
	case r := <-resultCh:
		assert.False(t, r.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("workflow did not settle after cancel")
	}

	status, err := e.WorkflowStatus("wf-cancel")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status.Status)
}
