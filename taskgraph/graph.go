// Package taskgraph implements the dependency graph that drives module
// execution order: tasks form a DAG, rejected at insertion if they would
// introduce a cycle, with explicit dependents backlinks so marking a
// task complete only re-examines the tasks that actually depend on it.
package taskgraph

import (
	"container/heap"
	"fmt"
	"sync"

	"vispipe.io/engine/module"
)

// Status is a task's position in the scheduling lifecycle.
type Status uint8

const (
	StatusPending Status = iota
	StatusReady
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
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

// ID identifies one task within a Graph.
type ID uint64

// Task is one scheduled module invocation. Dependencies and Dependents
// are maintained as sets keyed by ID for O(1) membership tests; the
// Graph owns all mutation of Status, Dependents and queue membership.
type Task struct {
	ID           ID
	ModuleID     uint32
	Context      module.ComputeContext
	Dependencies map[ID]struct{}
	Dependents   map[ID]struct{}
	Status       Status
	Priority     uint8
}

// NewTask constructs a Task with empty dependents, ready for AddTask.
// deps is copied into an internal set.
func NewTask(id ID, moduleID uint32, ctx module.ComputeContext, priority uint8, deps []ID) *Task {
	depSet := make(map[ID]struct{}, len(deps))
	for _, d := range deps {
		depSet[d] = struct{}{}
	}
	return &Task{
		ID:           id,
		ModuleID:     moduleID,
		Context:      ctx,
		Dependencies: depSet,
		Dependents:   make(map[ID]struct{}),
		Status:       StatusPending,
		Priority:     priority,
	}
}

// Sentinel errors returned by Graph operations.
var (
	ErrDuplicateTaskID   = fmt.Errorf("taskgraph: duplicate task id")
	ErrUnknownDependency = fmt.Errorf("taskgraph: unknown dependency")
	ErrCycleDetected     = fmt.Errorf("taskgraph: adding task would create a cycle")
)

// Graph is the mapping TaskID -> Task, the completion set, and a
// priority-ordered ready queue (ties broken by FIFO insertion order),
// guarded by one lock per the fixed concurrency-model requirement that
// add_task/mark_completed/pop_ready are exclusive and reads are shared.
type Graph struct {
	mu        sync.RWMutex
	tasks     map[ID]*Task
	completed map[ID]struct{}
	ready     readyQueue
	seq       uint64
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:     make(map[ID]*Task),
		completed: make(map[ID]struct{}),
	}
}

// AddTask validates that task.ID is unique, every dependency already
// exists in the graph, and inserting it does not introduce a cycle
// (depth-first search over existing dependency edges). If every
// dependency is already in the completion set the task is enqueued into
// the ready queue immediately; otherwise it is left pending.
func (g *Graph) AddTask(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateTaskID, task.ID)
	}
	for dep := range task.Dependencies {
		if _, ok := g.tasks[dep]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownDependency, dep)
		}
	}
	if g.wouldCreateCycle(task) {
		return fmt.Errorf("%w: task %d", ErrCycleDetected, task.ID)
	}

	g.tasks[task.ID] = task
	for dep := range task.Dependencies {
		g.tasks[dep].Dependents[task.ID] = struct{}{}
	}

	if g.dependenciesSatisfied(task) {
		g.enqueueReady(task)
	}
	return nil
}

// wouldCreateCycle runs a depth-first search from each of task's
// dependencies looking for a path back to task.ID. Since task is not
// yet present in g.tasks, the only way a path can return to it is
// through a dependency list that (directly or transitively) names
// task.ID, which can only happen if the caller built a cyclic
// dependency set by hand.
func (g *Graph) wouldCreateCycle(task *Task) bool {
	visited := make(map[ID]bool)
	var visit func(id ID) bool
	visit = func(id ID) bool {
		if id == task.ID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		t, ok := g.tasks[id]
		if !ok {
			return false
		}
		for dep := range t.Dependencies {
			if visit(dep) {
				return true
			}
		}
		return false
	}
	for dep := range task.Dependencies {
		if visit(dep) {
			return true
		}
	}
	return false
}

func (g *Graph) dependenciesSatisfied(task *Task) bool {
	for dep := range task.Dependencies {
		if _, ok := g.completed[dep]; !ok {
			return false
		}
	}
	return true
}

func (g *Graph) enqueueReady(task *Task) {
	task.Status = StatusReady
	g.seq++
	heap.Push(&g.ready, &readyEntry{task: task, seq: g.seq})
}

// MarkCompleted inserts id into the completion set and, for every
// dependent of id, enqueues it into the ready queue once all of its own
// dependencies are satisfied. Marking an already-completed id is a
// no-op. status lets the caller record success, failure or cancellation
// distinctly while still unblocking dependents only on success.
func (g *Graph) MarkCompleted(id ID, status Status) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, already := g.completed[id]; already {
		return
	}
	task, ok := g.tasks[id]
	if !ok {
		return
	}
	task.Status = status
	g.completed[id] = struct{}{}

	if status != StatusCompleted {
		return
	}
	for dep := range task.Dependents {
		dt, ok := g.tasks[dep]
		if !ok || dt.Status != StatusPending {
			continue
		}
		if g.dependenciesSatisfied(dt) {
			g.enqueueReady(dt)
		}
	}
}

// PopReady removes and returns the highest-priority ready task (ties
// broken by FIFO insertion order), transitioning it to running. Returns
// false if the ready queue is empty.
func (g *Graph) PopReady() (*Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready.Len() == 0 {
		return nil, false
	}
	entry := heap.Pop(&g.ready).(*readyEntry)
	entry.task.Status = StatusRunning
	return entry.task, true
}

// DropPendingAndReady transitions every task currently pending or ready
// to cancelled and removes any of them from the ready queue, without
// touching running or already-completed tasks. Used by workflow
// cancellation: tasks that never started are dropped, in-flight tasks
// are left to observe cancellation cooperatively.
func (g *Graph) DropPendingAndReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = readyQueue{}
	for _, t := range g.tasks {
		if t.Status == StatusPending || t.Status == StatusReady {
			t.Status = StatusCancelled
			g.completed[t.ID] = struct{}{}
		}
	}
}

// Get returns a copy of the task for id.
func (g *Graph) Get(id ID) (Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// PendingCount reports how many tasks are not yet in the completion set.
func (g *Graph) PendingCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks) - len(g.completed)
}

// IsComplete reports whether every task in the graph has reached a
// terminal status.
func (g *Graph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.completed) == len(g.tasks)
}

// RunningIDs returns the ids of every task currently in StatusRunning.
func (g *Graph) RunningIDs() []ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []ID
	for id, t := range g.tasks {
		if t.Status == StatusRunning {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the total number of tasks added to the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// readyEntry is one item in the priority heap: higher Priority sorts
// first, ties broken by lower seq (FIFO insertion order).
type readyEntry struct {
	task *Task
	seq  uint64
}

type readyQueue []*readyEntry

func (q readyQueue) Len() int { return len(q) }
func (q readyQueue) Less(i, j int) bool {
	if q[i].task.Priority != q[j].task.Priority {
		return q[i].task.Priority > q[j].task.Priority
	}
	return q[i].seq < q[j].seq
}
func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *readyQueue) Push(x interface{}) {
	*q = append(*q, x.(*readyEntry))
}
func (q *readyQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
