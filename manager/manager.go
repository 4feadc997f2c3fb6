// Package manager provides a higher-level façade over a taskcore.Executor:
// processing-strategy translation, a batching mode whose handles settle
// only on flush, advisory pause/resume, and statistics aggregation.
package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/johanjanssens/taskcore/taskcore"
)

// ProcessingStrategy is the Manager-level alias over taskcore's
// execution strategies plus BATCHED.
type ProcessingStrategy int

const (
	Parallel ProcessingStrategy = iota
	Batched
	Priority
	Graph
	PriorityGraph
	WorkStealing
)

func (s ProcessingStrategy) executionStrategy() taskcore.Strategy {
	switch s {
	case Priority:
		return taskcore.Priority
	case Graph, PriorityGraph:
		return taskcore.Dependency
	case WorkStealing:
		return taskcore.WorkStealing
	default: // Parallel, Batched
		return taskcore.FIFO
	}
}

// ErrNotPaused is returned by Resume when the Manager is not paused.
var ErrNotPaused = errors.New("manager: not paused")

// Option configures a Manager constructed with New.
type Option func(*Manager)

// WithBatchSize sets the batched-mode flush threshold. Defaults to 10.
func WithBatchSize(n int) Option { return func(m *Manager) { m.batchSize = n } }

// WithManagerLogger injects a structured logger.
func WithManagerLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithExecutorOptions forwards additional options to the underlying
// taskcore.Executor (worker count, default timeout, executor logger).
func WithExecutorOptions(opts ...taskcore.Option) Option {
	return func(m *Manager) { m.executorOpts = append(m.executorOpts, opts...) }
}

type pendingEntry struct {
	task   *taskcore.Task
	handle *Handle
}

// Manager owns at most one Executor and exposes the public façade:
// Start, Stop, Pause, Resume, Submit, SubmitMany, SubmitAndAwait,
// SubmitAndAwaitMany, CancelTask, WaitForTasks, WaitAll,
// GetPendingTasks, GetRunningTasks, GetStatistics.
type Manager struct {
	strategy     ProcessingStrategy
	batchSize    int
	logger       *slog.Logger
	executorOpts []taskcore.Option

	executor *taskcore.Executor

	mu          sync.Mutex
	running     bool
	paused      bool
	sessionAt   time.Time
	pendingBatch []pendingEntry
	held         []pendingEntry
}

// New constructs a Manager for the given processing strategy.
func New(strategy ProcessingStrategy, opts ...Option) *Manager {
	m := &Manager{strategy: strategy, batchSize: 10}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	allOpts := append([]taskcore.Option{taskcore.WithStrategy(strategy.executionStrategy())}, m.executorOpts...)
	m.executor = taskcore.NewExecutor(allOpts...)
	return m
}

// Start allocates the underlying executor's worker pool.
func (m *Manager) Start(callback taskcore.StatusCallback) error {
	m.mu.Lock()
	m.running = true
	m.sessionAt = time.Now()
	m.mu.Unlock()
	return m.executor.Start(callback)
}

// Stop flushes any batched or paused submissions and stops the executor.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.running = false
	batch := m.drainBatchLocked()
	held := m.held
	m.held = nil
	m.mu.Unlock()

	m.releaseLocked(batch)
	m.releaseLocked(held)
	m.executor.Stop()
}

// Pause is advisory: subsequently submitted tasks are held at the
// Manager instead of being forwarded to the Executor, until Resume.
// Tasks already in the Executor's own queues keep running to completion.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		m.logger.Debug("pause: already paused")
		return
	}
	m.paused = true
}

// Resume releases every task held since Pause. Calling it when not
// paused logs a warning and does nothing.
func (m *Manager) Resume() error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		m.logger.Warn("resume called while not paused")
		return ErrNotPaused
	}
	m.paused = false
	held := m.held
	m.held = nil
	m.mu.Unlock()

	m.releaseLocked(held)
	return nil
}

// Submit registers task, honoring pause (held client-side) and batched
// mode (accumulated until batchSize or an explicit WaitAll flush).
func (m *Manager) Submit(task *taskcore.Task) (*Handle, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil, taskcore.ErrNotRunning
	}
	h := newHandle(task.ID)
	entry := pendingEntry{task: task, handle: h}

	if m.paused {
		m.held = append(m.held, entry)
		m.mu.Unlock()
		return h, nil
	}

	if m.strategy == Batched {
		m.pendingBatch = append(m.pendingBatch, entry)
		flush := len(m.pendingBatch) >= m.batchSize
		var batch []pendingEntry
		if flush {
			batch = m.drainBatchLocked()
		}
		m.mu.Unlock()
		if flush {
			m.releaseLocked(batch)
		}
		return h, nil
	}
	m.mu.Unlock()

	m.submitNow(entry)
	return h, nil
}

// SubmitMany submits every task, returning handles in input order.
func (m *Manager) SubmitMany(tasks []*taskcore.Task) ([]*Handle, error) {
	handles := make([]*Handle, len(tasks))
	for i, t := range tasks {
		h, err := m.Submit(t)
		if err != nil {
			return handles, err
		}
		handles[i] = h
	}
	return handles, nil
}

// SubmitAndAwait submits task and blocks for its outcome.
func (m *Manager) SubmitAndAwait(ctx context.Context, task *taskcore.Task) (any, error) {
	h, err := m.Submit(task)
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// SubmitAndAwaitMany submits every task and blocks until all settle.
func (m *Manager) SubmitAndAwaitMany(ctx context.Context, tasks []*taskcore.Task) ([]any, []error) {
	handles, err := m.SubmitMany(tasks)
	values := make([]any, len(tasks))
	errs := make([]error, len(tasks))
	if err != nil {
		for i := range errs {
			errs[i] = err
		}
		return values, errs
	}
	for i, h := range handles {
		values[i], errs[i] = h.Wait(ctx)
	}
	return values, errs
}

func (m *Manager) drainBatchLocked() []pendingEntry {
	batch := m.pendingBatch
	m.pendingBatch = nil
	return batch
}

func (m *Manager) releaseLocked(entries []pendingEntry) {
	for _, e := range entries {
		m.submitNow(e)
	}
}

func (m *Manager) submitNow(e pendingEntry) {
	uh, err := m.executor.Submit(e.task)
	if err != nil {
		e.handle.settle(nil, err)
		return
	}
	go func() {
		v, err := uh.Wait(context.Background())
		e.handle.settle(v, err)
	}()
}

// CancelTask cancels a task, whether still held at the Manager (paused
// or un-flushed batch) or already registered with the Executor.
func (m *Manager) CancelTask(id string) bool {
	m.mu.Lock()
	for i, e := range m.held {
		if e.task.ID == id {
			m.held = append(m.held[:i], m.held[i+1:]...)
			m.mu.Unlock()
			e.handle.settle(nil, taskcore.ErrTaskCancelled)
			return true
		}
	}
	for i, e := range m.pendingBatch {
		if e.task.ID == id {
			m.pendingBatch = append(m.pendingBatch[:i], m.pendingBatch[i+1:]...)
			m.mu.Unlock()
			e.handle.settle(nil, taskcore.ErrTaskCancelled)
			return true
		}
	}
	m.mu.Unlock()
	return m.executor.Cancel(id)
}

// WaitForTasks blocks until every listed task settles or timeout
// elapses.
func (m *Manager) WaitForTasks(ids []string, timeout time.Duration) map[string]taskcore.WaitResult {
	return m.executor.WaitFor(ids, timeout)
}

// WaitAll flushes any pending batch, then blocks until every submitted
// task settles or timeout elapses.
func (m *Manager) WaitAll(timeout time.Duration) bool {
	m.mu.Lock()
	batch := m.drainBatchLocked()
	m.mu.Unlock()
	m.releaseLocked(batch)
	if !m.executor.WaitAll(timeout) {
		return false
	}
	// The executor's handles are settled; the flushed batch's Manager
	// handles are settled from submitNow's goroutines right after.
	for _, e := range batch {
		<-e.handle.Done()
	}
	return true
}

// GetPendingTasks returns ids of tasks not yet started, including any
// still held at the Manager.
func (m *Manager) GetPendingTasks() []string {
	m.mu.Lock()
	var held []string
	for _, e := range m.held {
		held = append(held, e.task.ID)
	}
	for _, e := range m.pendingBatch {
		held = append(held, e.task.ID)
	}
	m.mu.Unlock()
	return append(held, m.executor.GetPendingTasks()...)
}

// GetRunningTasks returns ids of tasks currently executing.
func (m *Manager) GetRunningTasks() []string {
	return m.executor.GetRunningTasks()
}

// GetStatistics returns the underlying executor's statistics snapshot.
func (m *Manager) GetStatistics() taskcore.StatsSnapshot {
	return m.executor.Statistics()
}

// SessionDuration returns the wall-clock time since Start, or 0 if
// never started.
func (m *Manager) SessionDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionAt.IsZero() {
		return 0
	}
	return time.Since(m.sessionAt)
}

// Handle is the Manager-level completion handle. Unlike a bare
// taskcore.Handle, it may outlive the underlying Executor submission:
// in batched or paused mode it settles only once the task is actually
// released to the Executor and runs to completion.
type Handle struct {
	id   string
	done chan struct{}

	mu    sync.Mutex
	value any
	err   error
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID returns the id of the task this handle tracks.
func (h *Handle) ID() string { return h.id }

// Done returns a channel closed once the handle settles.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the handle settles or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) settle(value any, err error) {
	h.mu.Lock()
	h.value, h.err = value, err
	h.mu.Unlock()
	close(h.done)
}
