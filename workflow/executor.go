package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"vispipe.io/engine/internal/metrics"
	"vispipe.io/engine/message"
	"vispipe.io/engine/module"
	"vispipe.io/engine/object"
	"vispipe.io/engine/scheduler"
	"vispipe.io/engine/taskgraph"
)

// Status is a workflow's position in its lifecycle.
type Status uint8

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// State is the scheduler-private record of one execute_workflow call,
// mutated only by the Executor that owns it.
type State struct {
	ID             string
	Spec           WorkflowSpec
	Status         Status
	Start          time.Time
	TasksCompleted int
	TasksTotal     int
}

// Result is returned by ExecuteWorkflow once the run has settled.
type Result struct {
	ID      string
	Success bool
	Tasks   map[taskgraph.ID]*scheduler.TaskResult
	Elapsed time.Duration
}

var (
	// ErrUnknownWorkflow is returned by WorkflowStatus/CancelWorkflow for
	// an id that was never submitted or has already been removed.
	ErrUnknownWorkflow = fmt.Errorf("workflow: unknown id")
	// ErrAlreadyRunning is returned by ExecuteWorkflow if spec.ID names a
	// workflow still tracked from a previous call.
	ErrAlreadyRunning = fmt.Errorf("workflow: id already in use")
)

// arenaStore mirrors scheduler.arenaStore so Config can pass an arena
// through without this package importing the concrete allocator.
type arenaStore interface {
	StoreObject(obj *object.Object) error
}

// Config configures an Executor.
type Config struct {
	MaxConcurrent int
	Arena         arenaStore
	Logger        *logrus.Entry
	Metrics       *metrics.Metrics
}

// Executor instantiates modules from a Registry by kind, builds a
// taskgraph from a WorkflowSpec's union of explicit and
// connection-derived dependencies, and drives it to completion with a
// scheduler, tracking WorkflowState for observability.
type Executor struct {
	modules *module.Registry
	objects *object.Registry
	router  *message.Router
	arena   arenaStore
	logger  *logrus.Entry
	metrics *metrics.Metrics
	maxConc int

	mu     sync.Mutex
	active map[string]*run
}

type run struct {
	state *State
	sched *scheduler.Scheduler
}

// New builds an Executor over the given module registry, object
// registry and message router.
func New(modules *module.Registry, objects *object.Registry, router *message.Router, cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		modules: modules,
		objects: objects,
		router:  router,
		arena:   cfg.Arena,
		logger:  logger,
		metrics: cfg.Metrics,
		maxConc: cfg.MaxConcurrent,
		active:  make(map[string]*run),
	}
}

// ExecuteWorkflow validates spec, instantiates its modules, builds a
// task graph from the union of explicit and connection-derived
// dependency edges, and runs the scheduler to completion (or until
// timeout, if positive). The workflow is tracked under spec.ID for the
// duration of the call and remains queryable via WorkflowStatus until
// RemoveWorkflow is called.
func (e *Executor) ExecuteWorkflow(ctx context.Context, spec WorkflowSpec, timeout time.Duration) (*Result, error) {
	if err := Validate(spec); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}

	e.mu.Lock()
	if _, exists := e.active[spec.ID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, spec.ID)
	}
	state := &State{ID: spec.ID, Spec: spec, Status: StatusPending, Start: time.Now(), TasksTotal: len(spec.Modules)}
	e.active[spec.ID] = &run{state: state}
	e.mu.Unlock()

	graph := taskgraph.New()
	instances := make(map[uint32]module.Module, len(spec.Modules))
	edges := dependencyEdges(spec)

	for _, m := range spec.Modules {
		inst, err := e.modules.CreateInstance(m.Kind, m.ID, 0, 1)
		if err != nil {
			e.fail(spec.ID)
			return nil, fmt.Errorf("workflow: instantiate module %d: %w", m.ID, err)
		}
		for name, v := range m.Parameters {
			if err := inst.Parameters().SetValue(name, v); err != nil {
				e.fail(spec.ID)
				return nil, fmt.Errorf("workflow: set parameter %q on module %d: %w", name, m.ID, err)
			}
		}
		instances[m.ID] = inst
		e.router.RegisterModule(m.ID)

		deps := make([]taskgraph.ID, 0, len(edges[m.ID]))
		for dep := range edges[m.ID] {
			deps = append(deps, taskgraph.ID(dep))
		}
		task := taskgraph.NewTask(taskgraph.ID(m.ID), m.ID, module.ComputeContext{ModuleID: m.ID}, m.Priority, deps)
		if err := graph.AddTask(task); err != nil {
			e.fail(spec.ID)
			return nil, fmt.Errorf("workflow: add task for module %d: %w", m.ID, err)
		}
	}

	conns := make([]scheduler.Connection, len(spec.Connections))
	for i, c := range spec.Connections {
		conns[i] = scheduler.Connection{FromModule: c.FromModule, FromPort: c.FromPort, ToModule: c.ToModule, ToPort: c.ToPort}
	}

	provider := func(id uint32) (module.Module, bool) {
		m, ok := instances[id]
		return m, ok
	}
	sched := scheduler.New(graph, e.objects, e.router, provider, conns, scheduler.Config{
		MaxConcurrent: e.maxConc,
		Arena:         e.arena,
		Logger:        e.logger.WithField("workflow", spec.ID),
		Metrics:       e.metrics,
	})

	e.mu.Lock()
	e.active[spec.ID].sched = sched
	state.Status = StatusRunning
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.WorkflowsActive.Inc()
		defer e.metrics.WorkflowsActive.Dec()
	}

	start := time.Now()
	runErr := sched.ExecuteAllWithTimeout(ctx, timeout)
	elapsed := time.Since(start)

	results := sched.Results()
	success := runErr == nil
	completed := 0
	for _, r := range results {
		if r.Success {
			completed++
		}
	}
	if completed != len(spec.Modules) {
		success = false
	}

	e.mu.Lock()
	if r, ok := e.active[spec.ID]; ok {
		r.state.TasksCompleted = completed
		if success {
			r.state.Status = StatusCompleted
		} else if r.state.Status != StatusCancelled {
			r.state.Status = StatusFailed
		}
	}
	finalStatus := e.active[spec.ID].state.Status
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.RecordWorkflow(finalStatus.String(), elapsed)
	}

	return &Result{ID: spec.ID, Success: success, Tasks: results, Elapsed: elapsed}, nil
}

func (e *Executor) fail(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.active[id]; ok {
		r.state.Status = StatusFailed
	}
}

// WorkflowStatus returns a snapshot of the tracked state for id.
func (e *Executor) WorkflowStatus(id string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.active[id]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, id)
	}
	return *r.state, nil
}

// ActiveWorkflows returns a snapshot of every tracked workflow whose
// status is still running.
func (e *Executor) ActiveWorkflows() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]State, 0, len(e.active))
	for _, r := range e.active {
		if r.state.Status == StatusRunning {
			out = append(out, *r.state)
		}
	}
	return out
}

// CancelWorkflow sets id's status to cancelled and asks its scheduler
// to cooperatively cancel every running task. Returns
// ErrUnknownWorkflow if id is not tracked; for a workflow that is not
// running it changes nothing and returns nil.
func (e *Executor) CancelWorkflow(id string) error {
	e.mu.Lock()
	r, ok := e.active[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, id)
	}
	if r.state.Status != StatusRunning {
		e.mu.Unlock()
		return nil
	}
	r.state.Status = StatusCancelled
	sched := r.sched
	e.mu.Unlock()

	if sched != nil {
		sched.Cancel()
	}
	return nil
}

// RemoveWorkflow drops id's tracked state. Safe to call on a running
// workflow; it does not cancel it.
func (e *Executor) RemoveWorkflow(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
}
