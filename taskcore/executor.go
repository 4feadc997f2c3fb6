package taskcore

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// StatusCallback is invoked at every status transition a task makes after
// its first PENDING. Implementations must not panic; a recovered panic is
// logged and swallowed so one misbehaving callback never destabilizes the
// executor.
type StatusCallback func(taskID string, status Status, value any, err error)

// Option configures an Executor constructed with NewExecutor.
type Option func(*Executor)

// WithStrategy selects the execution strategy. Defaults to FIFO.
func WithStrategy(s Strategy) Option { return func(e *Executor) { e.strategy = s } }

// WithMaxWorkers bounds the worker pool size. 0 (the default) resolves to
// runtime.GOMAXPROCS(0) at Start time.
func WithMaxWorkers(n int) Option { return func(e *Executor) { e.maxWorkers = n } }

// WithDefaultTimeout sets the timeout applied to tasks that don't specify
// their own.
func WithDefaultTimeout(d time.Duration) Option { return func(e *Executor) { e.defaultTimeout = d } }

// WithExecutorLogger injects a structured logger. Defaults to a handler
// that discards everything.
func WithExecutorLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

// Executor runs submitted Tasks concurrently up to a bounded number of
// workers, honoring one of four execution strategies, dependency gating,
// per-task timeouts, and cooperative cancellation.
type Executor struct {
	strategy       Strategy
	maxWorkers     int
	defaultTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	running  bool
	stopCtx  context.Context
	stopFn   context.CancelFunc
	wg       sync.WaitGroup
	callback StatusCallback

	taskMap   map[string]*Task
	handles   map[string]*Handle
	deps      map[string]map[string]struct{}
	reverse   map[string]map[string]struct{}
	completed map[string]struct{}
	seq       uint64

	queue        priorityHeap
	workerQueues []*workerDeque
	overflow     priorityHeap

	stats *execStats
}

// NewExecutor constructs an Executor. Call Start before submitting tasks.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		strategy:  FIFO,
		taskMap:   make(map[string]*Task),
		handles:   make(map[string]*Handle),
		deps:      make(map[string]map[string]struct{}),
		reverse:   make(map[string]map[string]struct{}),
		completed: make(map[string]struct{}),
		stats:     newExecStats(),
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// Start allocates the worker pool and internal queues. It is idempotent
// in the sense that a second call fails with ErrAlreadyRunning rather
// than spawning a second pool.
func (e *Executor) Start(callback StatusCallback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	if e.maxWorkers <= 0 {
		e.maxWorkers = runtime.GOMAXPROCS(0)
	}
	e.running = true
	e.callback = callback
	e.stopCtx, e.stopFn = context.WithCancel(context.Background())

	if e.strategy == WorkStealing {
		e.workerQueues = make([]*workerDeque, e.maxWorkers)
		for i := range e.workerQueues {
			e.workerQueues[i] = &workerDeque{}
		}
	}

	for i := 0; i < e.maxWorkers; i++ {
		e.wg.Add(1)
		go e.workerLoop(i)
	}
	e.logger.Debug("executor started", "workers", e.maxWorkers, "strategy", e.strategy.String())
	return nil
}

// Stop signals all workers, cancels every task not yet running, and
// blocks until running tasks finish or hit their deadlines.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false

	var events []statusEvent
	for id, t := range e.taskMap {
		switch t.Status() {
		case StatusPending, StatusScheduled:
		default:
			continue
		}
		t.finish(StatusCancelled, nil, ErrTaskCancelled, time.Now())
		e.stats.onCancelledPending()
		events = append(events, statusEvent{id: id, status: StatusCancelled, err: ErrTaskCancelled})
	}
	e.stopFn()
	e.cond.Broadcast()
	e.mu.Unlock()

	for _, ev := range events {
		e.emit(ev)
	}

	e.wg.Wait()
	e.logger.Debug("executor stopped")
}

type statusEvent struct {
	id     string
	status Status
	value  any
	err    error
}

func (e *Executor) emit(ev statusEvent) {
	e.mu.Lock()
	h := e.handles[ev.id]
	e.mu.Unlock()
	if h != nil {
		select {
		case <-h.Done():
		default:
			h.settle()
		}
	}
	e.invokeCallback(ev.id, ev.status, ev.value, ev.err)
}

func (e *Executor) invokeCallback(id string, status Status, value any, err error) {
	if e.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("status callback panicked", "task_id", id, "recover", r)
		}
	}()
	e.callback(id, status, value, err)
}

// Submit registers task and its dependency edges, enqueuing it
// immediately if every dependency is already completed. It returns a
// Handle that settles with the task's eventual outcome.
func (e *Executor) Submit(task *Task) (*Handle, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, ErrNotRunning
	}
	if _, exists := e.taskMap[task.ID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	handle := newHandle(task)
	e.taskMap[task.ID] = task
	e.handles[task.ID] = handle

	depSet := make(map[string]struct{}, len(task.Dependencies))
	for _, d := range task.Dependencies {
		depSet[d] = struct{}{}
		if e.reverse[d] == nil {
			e.reverse[d] = make(map[string]struct{})
		}
		e.reverse[d][task.ID] = struct{}{}
	}
	e.deps[task.ID] = depSet

	e.stats.onSubmit()

	// A prerequisite that already failed or was cancelled cancels the new
	// task (and anything already waiting on it) right away.
	var events []statusEvent
	for d := range depSet {
		pt := e.taskMap[d]
		if pt == nil || !pt.Status().IsTerminal() || pt.Status() == StatusCompleted {
			continue
		}
		cause := &DependencyError{PrereqID: d}
		task.finish(StatusCancelled, nil, cause, time.Now())
		e.stats.onCancelledPending()
		events = append(events, statusEvent{id: task.ID, status: StatusCancelled, err: cause})
		events = append(events, e.cascadeCancelLocked(task.ID)...)
		break
	}
	if len(events) == 0 && e.dependenciesSatisfiedLocked(task.ID) {
		e.enqueueLocked(task, false)
		events = append(events, statusEvent{id: task.ID, status: StatusScheduled})
	}
	e.mu.Unlock()

	for _, ev := range events {
		e.emit(ev)
	}
	return handle, nil
}

// SubmitAll submits every task, returning handles in the same order as
// the input.
func (e *Executor) SubmitAll(tasks []*Task) ([]*Handle, error) {
	handles := make([]*Handle, len(tasks))
	for i, t := range tasks {
		h, err := e.Submit(t)
		if err != nil {
			return handles, err
		}
		handles[i] = h
	}
	return handles, nil
}

func (e *Executor) dependenciesSatisfiedLocked(id string) bool {
	for d := range e.deps[id] {
		if _, ok := e.completed[d]; !ok {
			return false
		}
	}
	return true
}

// enqueueLocked places task on the appropriate ready queue. late is true
// when the task is becoming ready due to a dependency completing after
// the fact (as opposed to being ready immediately at submission); under
// WORK_STEALING late arrivals go to the shared overflow queue instead of
// a freshly load-balanced worker queue.
func (e *Executor) enqueueLocked(t *Task, late bool) {
	t.transition(StatusScheduled, time.Now())

	switch e.strategy {
	case FIFO, Priority, Dependency:
		key := 0
		switch e.strategy {
		case Priority:
			key = int(t.Priority)
		case Dependency:
			key = dependencyKey(t.Priority, len(e.reverse[t.ID]))
		}
		e.seq++
		heap.Push(&e.queue, &queueItem{key: key, seq: e.seq, task: t})
		e.cond.Broadcast()
	case WorkStealing:
		if late {
			e.seq++
			heap.Push(&e.overflow, &queueItem{key: int(t.Priority), seq: e.seq, task: t})
			return
		}
		idx, min := 0, -1
		for i, wq := range e.workerQueues {
			if min == -1 || wq.len() < min {
				min = wq.len()
				idx = i
			}
		}
		e.workerQueues[idx].pushBack(t)
	}
}

// Cancel cancels task id if it is still PENDING or SCHEDULED. It returns
// false for unknown, running, or already-terminal tasks.
func (e *Executor) Cancel(taskID string) bool {
	e.mu.Lock()
	t, ok := e.taskMap[taskID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	switch t.Status() {
	case StatusPending, StatusScheduled:
	default:
		e.mu.Unlock()
		return false
	}
	t.finish(StatusCancelled, nil, ErrTaskCancelled, time.Now())
	e.stats.onCancelledPending()
	events := e.cascadeCancelLocked(taskID)
	e.mu.Unlock()

	e.emit(statusEvent{id: taskID, status: StatusCancelled, err: ErrTaskCancelled})
	for _, ev := range events {
		e.emit(ev)
	}
	return true
}

// cascadeCancelLocked transitively cancels every not-yet-terminal
// dependent of rootID with DependencyError, returning the events to emit
// once the lock is released. Callers must hold e.mu.
func (e *Executor) cascadeCancelLocked(rootID string) []statusEvent {
	var events []statusEvent
	visited := map[string]bool{}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for depID := range e.reverse[id] {
			if visited[depID] {
				continue
			}
			visited[depID] = true
			dt := e.taskMap[depID]
			if dt == nil || dt.Status().IsTerminal() {
				continue
			}
			cause := &DependencyError{PrereqID: id}
			dt.finish(StatusCancelled, nil, cause, time.Now())
			e.stats.onCancelledPending()
			events = append(events, statusEvent{id: depID, status: StatusCancelled, err: cause})
			queue = append(queue, depID)
		}
	}
	return events
}

// WaitResult is the outcome reported by WaitFor for one task.
type WaitResult struct {
	Value   any
	Err     error
	Settled bool
}

// WaitFor blocks until every listed handle settles or timeout elapses.
// Unsettled entries map to a zero WaitResult (Settled=false).
func (e *Executor) WaitFor(taskIDs []string, timeout time.Duration) map[string]WaitResult {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := make(map[string]WaitResult, len(taskIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range taskIDs {
		e.mu.Lock()
		h := e.handles[id]
		e.mu.Unlock()
		if h == nil {
			mu.Lock()
			results[id] = WaitResult{}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(id string, h *Handle) {
			defer wg.Done()
			select {
			case <-h.Done():
				v, err := h.task.Outcome()
				mu.Lock()
				results[id] = WaitResult{Value: v, Err: err, Settled: true}
				mu.Unlock()
			case <-ctx.Done():
				mu.Lock()
				results[id] = WaitResult{}
				mu.Unlock()
			}
		}(id, h)
	}
	wg.Wait()
	return results
}

// WaitAll blocks until every submitted task settles or timeout elapses,
// returning whether all of them did.
func (e *Executor) WaitAll(timeout time.Duration) bool {
	e.mu.Lock()
	ids := make([]string, 0, len(e.taskMap))
	for id := range e.taskMap {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	res := e.WaitFor(ids, timeout)
	for _, r := range res {
		if !r.Settled {
			return false
		}
	}
	return true
}

// Statistics returns a point-in-time snapshot of executor counters and
// gauges.
func (e *Executor) Statistics() StatsSnapshot {
	e.mu.Lock()
	qsize := int64(len(e.queue))
	for _, wq := range e.workerQueues {
		qsize += int64(wq.len())
	}
	qsize += int64(len(e.overflow))
	e.mu.Unlock()
	return e.stats.snapshot(qsize)
}

// GetPendingTasks returns the ids of tasks not yet started.
func (e *Executor) GetPendingTasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for id, t := range e.taskMap {
		switch t.Status() {
		case StatusPending, StatusScheduled:
			ids = append(ids, id)
		}
	}
	return ids
}

// GetRunningTasks returns the ids of tasks currently executing.
func (e *Executor) GetRunningTasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for id, t := range e.taskMap {
		if t.Status() == StatusRunning {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsRunning reports whether the executor has been started and not yet
// stopped.
func (e *Executor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Executor) workerLoop(id int) {
	defer e.wg.Done()
	if e.strategy == WorkStealing {
		e.workStealingLoop(id)
		return
	}
	e.sharedQueueLoop(id)
}

func (e *Executor) sharedQueueLoop(id int) {
	for {
		e.mu.Lock()
		for e.queue.Len() == 0 && e.running {
			e.cond.Wait()
		}
		if e.queue.Len() == 0 && !e.running {
			e.mu.Unlock()
			return
		}
		t := popReady(&e.queue)
		e.mu.Unlock()
		if t == nil {
			continue
		}
		e.runTask(t)
	}
}

const stealPollInterval = 10 * time.Millisecond

func (e *Executor) workStealingLoop(id int) {
	failedSteals := 0
	for {
		e.mu.Lock()
		if !e.running && e.workerQueues[id].len() == 0 {
			e.mu.Unlock()
			return
		}
		t := e.workerQueues[id].popFront()
		e.mu.Unlock()
		if t != nil {
			failedSteals = 0
			e.runTask(t)
			continue
		}

		stolen := e.tryStealLocked(id)
		if stolen != nil {
			failedSteals = 0
			e.stats.onSteal()
			e.runTask(stolen)
			continue
		}

		failedSteals++
		if failedSteals >= 3 {
			e.mu.Lock()
			ov := popReady(&e.overflow)
			e.mu.Unlock()
			if ov != nil {
				failedSteals = 0
				e.runTask(ov)
				continue
			}
		}

		select {
		case <-e.stopCtx.Done():
			e.mu.Lock()
			empty := e.workerQueues[id].len() == 0
			e.mu.Unlock()
			if empty {
				return
			}
		case <-time.After(stealPollInterval):
		}
	}
}

func (e *Executor) tryStealLocked(self int) *Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	victim, max := -1, 0
	for i, wq := range e.workerQueues {
		if i == self {
			continue
		}
		if wq.len() > max {
			max = wq.len()
			victim = i
		}
	}
	if victim == -1 {
		return nil
	}
	return e.workerQueues[victim].popBack()
}

func (e *Executor) runTask(t *Task) {
	now := time.Now()
	t.transition(StatusRunning, now)
	e.stats.onStart()
	e.emit(statusEvent{id: t.ID, status: StatusRunning})

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	// Deliberately not derived from e.stopCtx: Stop() must not interrupt a
	// task already running. It waits for this task to finish or hit its
	// own deadline instead.
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := t.fn(runCtx)
		done <- outcome{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			err := fmt.Errorf("%w: %v", ErrTaskFailed, r.err)
			t.finish(StatusFailed, nil, err, time.Now())
			e.stats.onFailed()
			e.emit(statusEvent{id: t.ID, status: StatusFailed, err: err})
			e.afterNonSuccess(t.ID)
		} else {
			t.finish(StatusCompleted, r.v, nil, time.Now())
			dur, _ := t.Duration()
			e.stats.onCompleted(dur)
			e.emit(statusEvent{id: t.ID, status: StatusCompleted, value: r.v})
			e.afterSuccess(t.ID)
		}
	case <-runCtx.Done():
		if timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err := newTimeoutError(t.ID, timeout)
			t.finish(StatusTimeout, nil, err, time.Now())
			e.stats.onTimeout()
			e.emit(statusEvent{id: t.ID, status: StatusTimeout, err: err})
			e.afterNonSuccess(t.ID)
		} else {
			t.finish(StatusCancelled, nil, ErrTaskCancelled, time.Now())
			e.stats.onCancelledRunning()
			e.emit(statusEvent{id: t.ID, status: StatusCancelled, err: ErrTaskCancelled})
			e.afterNonSuccess(t.ID)
		}
	}
}

func (e *Executor) afterSuccess(id string) {
	e.mu.Lock()
	e.completed[id] = struct{}{}
	var ready []*Task
	for depID := range e.reverse[id] {
		dt := e.taskMap[depID]
		if dt == nil || dt.Status().IsTerminal() {
			continue
		}
		if dt.Status() != StatusPending {
			continue
		}
		if e.dependenciesSatisfiedLocked(depID) {
			e.enqueueLocked(dt, true)
			ready = append(ready, dt)
		}
	}
	e.mu.Unlock()
	for _, t := range ready {
		e.emit(statusEvent{id: t.ID, status: StatusScheduled})
	}
}

func (e *Executor) afterNonSuccess(id string) {
	e.mu.Lock()
	events := e.cascadeCancelLocked(id)
	e.mu.Unlock()
	for _, ev := range events {
		e.emit(ev)
	}
}
