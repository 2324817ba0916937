// Package scheduler drives a taskgraph.Graph to completion: it pulls
// ready tasks off the graph, runs each task's module under a bounded
// concurrency gate, stores published outputs in the object registry,
// forwards them to downstream modules over the message router, and
// feeds results back into the graph until nothing more can run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"vispipe.io/engine/internal/metrics"
	"vispipe.io/engine/message"
	"vispipe.io/engine/module"
	"vispipe.io/engine/object"
	"vispipe.io/engine/taskgraph"
)

// DefaultMaxConcurrent is the default number of tasks allowed to run at
// once when Config.MaxConcurrent is left zero.
const DefaultMaxConcurrent = 8

// ErrTimeout is returned by ExecuteAllWithTimeout when the configured
// deadline fires before the graph drains.
var ErrTimeout = errors.New("scheduler: workflow timed out")

// Connection describes a wire from one module's output port to
// another's input port, as declared by a workflow's connection specs.
// The scheduler consults these after every successful Compute to know
// which AddObject messages to emit.
type Connection struct {
	FromModule uint32
	FromPort   string
	ToModule   uint32
	ToPort     string
}

// ModuleProvider resolves a task's module id to the live Module
// instance the scheduler should invoke.
type ModuleProvider func(moduleID uint32) (module.Module, bool)

// TaskResult records the outcome of one task's execution, keyed by
// task id in Scheduler.Results.
type TaskResult struct {
	TaskID   taskgraph.ID
	ModuleID uint32
	Success  bool
	Outputs  map[string][]object.ID
	Err      error
	Elapsed  time.Duration
}

// Config configures a Scheduler.
type Config struct {
	// MaxConcurrent bounds the number of tasks running at once. Zero
	// means DefaultMaxConcurrent.
	MaxConcurrent int
	// Arena, if non-nil, receives a best-effort copy of every object a
	// task publishes, in addition to the authoritative object.Registry
	// store.
	Arena arenaStore
	Logger *logrus.Entry
	// Metrics, if non-nil, receives per-task and per-message counters.
	Metrics *metrics.Metrics
}

// arenaStore is the subset of arena.Arena the scheduler depends on, so
// tests can supply a fake without pulling in the real allocator.
type arenaStore interface {
	StoreObject(obj *object.Object) error
}

// Scheduler executes the ready tasks of one taskgraph.Graph to
// completion, respecting a configured concurrency limit, and supports
// cooperative cancellation and an overall execution timeout.
type Scheduler struct {
	graph       *taskgraph.Graph
	objects     *object.Registry
	router      *message.Router
	modules     ModuleProvider
	connections []Connection
	arena       arenaStore
	logger      *logrus.Entry
	metrics     *metrics.Metrics

	sem  chan struct{}
	wake chan struct{}
	wg   sync.WaitGroup

	mu        sync.Mutex
	cancelled bool
	cancelFn  context.CancelFunc

	resultsMu sync.Mutex
	results   map[taskgraph.ID]*TaskResult

	// inputsMu guards heldInputs, the set of object ids a running task
	// currently holds a registry reference to by way of its module
	// inputs. Acquired in deliverPendingInputs, released in finishTask,
	// so Registry.Remove's ErrInUse reflects objects actually in flight.
	inputsMu   sync.Mutex
	heldInputs map[taskgraph.ID][]object.ID
}

// New builds a Scheduler over graph, wiring its object publication and
// message routing through objects and router. connections drives
// AddObject fan-out after a task's Compute succeeds.
func New(graph *taskgraph.Graph, objects *object.Registry, router *message.Router, modules ModuleProvider, connections []Connection, cfg Config) *Scheduler {
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		graph:       graph,
		objects:     objects,
		router:      router,
		modules:     modules,
		connections: connections,
		arena:       cfg.Arena,
		logger:      logger,
		metrics:     cfg.Metrics,
		sem:         make(chan struct{}, max),
		wake:        make(chan struct{}, 1),
		results:     make(map[taskgraph.ID]*TaskResult),
		heldInputs:  make(map[taskgraph.ID][]object.ID),
	}
}

// ExecuteAll runs tasks from the graph until the ready queue is
// permanently empty: on each iteration it acquires one unit of the
// concurrency gate, pops the highest-priority ready task and launches
// it in its own goroutine, or — if nothing is ready — blocks until a
// running task completes, unless no task is running either, in which
// case the graph has drained and ExecuteAll returns nil. Returns
// ctx.Err() if parent is cancelled or its deadline expires before the
// graph drains; every goroutine spawned this call has exited by the
// time ExecuteAll returns.
func (s *Scheduler) ExecuteAll(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancelFn = cancel
	s.mu.Unlock()
	defer cancel()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.sem <- struct{}{}:
		}

		task, ok := s.graph.PopReady()
		if !ok {
			<-s.sem
			if len(s.graph.RunningIDs()) == 0 {
				return nil
			}
			select {
			case <-s.wake:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		s.wg.Add(1)
		go s.runTask(ctx, task)
	}
}

// ExecuteAllWithTimeout wraps ExecuteAll with a deadline. On timeout it
// broadcasts cancellation to every running module exactly as Cancel
// does, waits for the graph to settle, and returns ErrTimeout instead
// of the underlying context error. A non-positive timeout disables the
// deadline and behaves exactly as ExecuteAll.
func (s *Scheduler) ExecuteAllWithTimeout(parent context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return s.ExecuteAll(parent)
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		s.Cancel()
	})
	defer timer.Stop()

	err := s.ExecuteAll(parent)
	if timedOut.Load() {
		return ErrTimeout
	}
	return err
}

// Cancel requests cooperative cancellation: every currently running
// module is sent Cancel() and a CancelExecute message, every
// pending/ready task is dropped, and the internal context driving
// ExecuteAll is cancelled so in-flight Compute calls observe it at
// their next suspension point. Idempotent; safe to call before
// ExecuteAll, concurrently with it, or after it has returned.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	cancelFn := s.cancelFn
	s.mu.Unlock()

	for _, id := range s.graph.RunningIDs() {
		t, ok := s.graph.Get(id)
		if !ok {
			continue
		}
		if mod, ok := s.modules(t.ModuleID); ok {
			mod.Cancel()
		}
		env := &message.Envelope{Message: message.New(message.SystemModule, t.ModuleID, message.CancelExecuteBody{Module: t.ModuleID})}
		if err := s.router.RouteMessage(context.Background(), env); err != nil {
			s.logger.WithError(err).Warn("scheduler: failed to deliver CancelExecute")
		}
	}
	s.graph.DropPendingAndReady()

	if cancelFn != nil {
		cancelFn()
	}
}

// Results returns a snapshot of every TaskResult recorded so far.
func (s *Scheduler) Results() map[taskgraph.ID]*TaskResult {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	out := make(map[taskgraph.ID]*TaskResult, len(s.results))
	for id, r := range s.results {
		cp := *r
		out[id] = &cp
	}
	return out
}

func (s *Scheduler) notifyWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runTask(ctx context.Context, task *taskgraph.Task) {
	defer s.wg.Done()
	defer func() { <-s.sem; s.notifyWake() }()

	mod, ok := s.modules(task.ModuleID)
	if !ok {
		err := fmt.Errorf("scheduler: no module registered for id %d", task.ModuleID)
		s.finishTask(ctx, task, "unknown", nil, err, 0)
		return
	}
	kind := mod.Info().DisplayName

	s.deliverPendingInputs(task, mod)

	start := time.Now()
	outputs, err := mod.Compute(ctx, task.Context)
	elapsed := time.Since(start)
	s.finishTask(ctx, task, kind, outputs, err, elapsed)
}

// deliverPendingInputs drains task's module inbox of every AddObject
// envelope queued since the last run — published by an upstream task's
// forwardObjects, or injected directly ahead of execution — groups the
// ids by target port, and calls SetInput once per port so Compute sees
// them. A non-AddObject envelope (a CancelExecute, say) is removed from
// the inbox along with them and discarded without being acted on.
// Delivered ids are acquired in the object registry for the lifetime of
// the task and released in finishTask.
func (s *Scheduler) deliverPendingInputs(task *taskgraph.Task, mod module.Module) {
	q, ok := s.router.Queue(task.ModuleID)
	if !ok {
		return
	}

	pending := make(map[string][]object.ID)
	var held []object.ID
	for {
		env, ok := q.TryReceive()
		if !ok {
			break
		}
		body, ok := env.Message.Body.(message.AddObjectBody)
		if !ok {
			continue
		}
		pending[body.Port] = append(pending[body.Port], body.Object)
		held = append(held, body.Object)
	}
	if len(held) == 0 {
		return
	}

	for _, id := range held {
		s.objects.Acquire(id)
	}
	s.inputsMu.Lock()
	s.heldInputs[task.ID] = held
	s.inputsMu.Unlock()

	for port, ids := range pending {
		if err := mod.SetInput(port, ids); err != nil {
			s.logger.WithError(err).WithField("module", task.ModuleID).WithField("port", port).Warn("scheduler: failed to set module input")
		}
	}
}

// releaseHeldInputs drops the registry references deliverPendingInputs
// acquired for task, regardless of how the task finished.
func (s *Scheduler) releaseHeldInputs(taskID taskgraph.ID) {
	s.inputsMu.Lock()
	ids := s.heldInputs[taskID]
	delete(s.heldInputs, taskID)
	s.inputsMu.Unlock()
	for _, id := range ids {
		s.objects.Release(id)
	}
}

func (s *Scheduler) finishTask(ctx context.Context, task *taskgraph.Task, kind string, outputs map[string][]*object.Object, err error, elapsed time.Duration) {
	defer s.releaseHeldInputs(task.ID)

	if err != nil {
		status := taskgraph.StatusFailed
		if ctx.Err() != nil {
			status = taskgraph.StatusCancelled
		}
		s.graph.MarkCompleted(task.ID, status)
		s.recordResult(task, false, nil, err, elapsed)
		if s.metrics != nil {
			s.metrics.RecordTask(kind, status.String(), elapsed)
		}

		env := &message.Envelope{Message: message.New(task.ModuleID, message.SystemModule, message.ErrorBody{
			Module: task.ModuleID,
			Text:   err.Error(),
		})}
		if routeErr := s.router.RouteMessage(context.Background(), env); routeErr != nil {
			s.logger.WithError(routeErr).Warn("scheduler: failed to deliver Error message")
		} else if s.metrics != nil {
			s.metrics.RecordMessage(env.Message.Body.Kind().String())
		}
		return
	}

	outputIDs := make(map[string][]object.ID, len(outputs))
	var allIDs []object.ID
	for port, objs := range outputs {
		ids := make([]object.ID, 0, len(objs))
		for _, obj := range objs {
			if storeErr := s.objects.Store(obj); storeErr != nil {
				s.logger.WithError(storeErr).WithField("module", task.ModuleID).Warn("scheduler: failed to store published object")
				continue
			}
			if s.arena != nil {
				if arenaErr := s.arena.StoreObject(obj); arenaErr != nil {
					s.logger.WithError(arenaErr).WithField("module", task.ModuleID).Warn("scheduler: failed to mirror object into arena")
				}
			}
			ids = append(ids, obj.ID())
			allIDs = append(allIDs, obj.ID())
		}
		outputIDs[port] = ids
		s.forwardObjects(task.ModuleID, port, ids)
	}

	env := &message.Envelope{Message: message.New(task.ModuleID, message.SystemModule, message.ComputationCompleteBody{
		Module:  task.ModuleID,
		Objects: allIDs,
	})}
	if routeErr := s.router.RouteMessage(context.Background(), env); routeErr != nil {
		s.logger.WithError(routeErr).Warn("scheduler: failed to deliver ComputationComplete message")
	} else if s.metrics != nil {
		s.metrics.RecordMessage(env.Message.Body.Kind().String())
	}

	s.graph.MarkCompleted(task.ID, taskgraph.StatusCompleted)
	s.recordResult(task, true, outputIDs, nil, elapsed)
	if s.metrics != nil {
		s.metrics.RecordTask(kind, taskgraph.StatusCompleted.String(), elapsed)
	}
}

// forwardObjects emits one AddObject message per published id to every
// module wired to consume fromPort, in publication order.
func (s *Scheduler) forwardObjects(fromModule uint32, fromPort string, ids []object.ID) {
	for _, conn := range s.connections {
		if conn.FromModule != fromModule || conn.FromPort != fromPort {
			continue
		}
		for _, id := range ids {
			env := &message.Envelope{Message: message.New(fromModule, conn.ToModule, message.AddObjectBody{
				Object: id,
				Port:   conn.ToPort,
			})}
			if err := s.router.RouteMessage(context.Background(), env); err != nil {
				s.logger.WithError(err).WithField("to_module", conn.ToModule).Warn("scheduler: failed to deliver AddObject")
			} else if s.metrics != nil {
				s.metrics.RecordMessage(env.Message.Body.Kind().String())
			}
		}
	}
}

func (s *Scheduler) recordResult(task *taskgraph.Task, success bool, outputs map[string][]object.ID, err error, elapsed time.Duration) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	s.results[task.ID] = &TaskResult{
		TaskID:   task.ID,
		ModuleID: task.ModuleID,
		Success:  success,
		Outputs:  outputs,
		Err:      err,
		Elapsed:  elapsed,
	}
}
