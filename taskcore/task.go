package taskcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
)

// Func is the deferred computation a Task wraps. It must honor ctx
// cancellation: once ctx is done, it should abandon further work as soon
// as practical.
type Func func(ctx context.Context) (any, error)

// Task is a unit of deferred computation with identity, priority,
// dependencies and an optional timeout. Its status and result fields are
// written only by the worker that owns it at any given time (the
// submitter until Submit, the Executor thereafter); external code must
// observe outcomes through a Handle, never by polling fields directly.
type Task struct {
	ID           string
	Name         string
	Priority     Priority
	Dependencies []string
	Timeout      time.Duration
	Metadata     map[string]any

	fn Func

	mu        sync.Mutex
	status    Status
	startTime time.Time
	endTime   time.Time
	result    any
	err       error
}

// TaskOption configures a Task constructed with NewFunc.
type TaskOption func(*Task)

// WithID overrides the generated task id.
func WithID(id string) TaskOption { return func(t *Task) { t.ID = id } }

// WithName sets a human-readable display name.
func WithName(name string) TaskOption { return func(t *Task) { t.Name = name } }

// WithPriority sets the scheduling priority.
func WithPriority(p Priority) TaskOption { return func(t *Task) { t.Priority = p } }

// WithDependencies sets the ids of prerequisite tasks.
func WithDependencies(ids ...string) TaskOption {
	return func(t *Task) { t.Dependencies = append([]string(nil), ids...) }
}

// WithTimeout sets a per-task execution timeout.
func WithTimeout(d time.Duration) TaskOption { return func(t *Task) { t.Timeout = d } }

// WithMetadata attaches opaque caller metadata.
func WithMetadata(md map[string]any) TaskOption { return func(t *Task) { t.Metadata = md } }

// NewFunc creates a Task from a computation function, mirroring the
// ergonomics of a convenience constructor: an id is generated if not
// supplied via WithID, and the display name defaults to "Task-<id[:8]>".
func NewFunc(fn Func, opts ...TaskOption) *Task {
	t := &Task{
		ID:       xid.New().String(),
		Priority: PriorityNormal,
		fn:       fn,
		status:   StatusPending,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.Name == "" {
		end := 8
		if len(t.ID) < end {
			end = len(t.ID)
		}
		t.Name = fmt.Sprintf("Task-%s", t.ID[:end])
	}
	return t
}

// Status returns the task's current lifecycle status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StartTime returns the wall-clock time the task entered RUNNING, and
// whether it has done so yet.
func (t *Task) StartTime() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTime, !t.startTime.IsZero()
}

// EndTime returns the wall-clock time the task entered a terminal state,
// and whether it has done so yet.
func (t *Task) EndTime() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endTime, !t.endTime.IsZero()
}

// Duration returns end-start when both timestamps are set.
func (t *Task) Duration() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startTime.IsZero() || t.endTime.IsZero() {
		return 0, false
	}
	return t.endTime.Sub(t.startTime), true
}

// Outcome returns the task's result value and error once it has reached a
// terminal state. Before that it returns (nil, nil).
func (t *Task) Outcome() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Snapshot is a point-in-time, immutable view of a Task suitable for
// logging, diagnostics, or JSON marshaling.
type Snapshot struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority"`
	Dependencies []string       `json:"dependencies,omitempty"`
	StartTime    *time.Time     `json:"start_time,omitempty"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Duration     *time.Duration `json:"duration,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Snapshot captures the task's current state as a plain value.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		ID:           t.ID,
		Name:         t.Name,
		Status:       t.status.String(),
		Priority:     t.Priority.String(),
		Dependencies: t.Dependencies,
	}
	if !t.startTime.IsZero() {
		st := t.startTime
		s.StartTime = &st
	}
	if !t.endTime.IsZero() {
		et := t.endTime
		s.EndTime = &et
	}
	if !t.startTime.IsZero() && !t.endTime.IsZero() {
		d := t.endTime.Sub(t.startTime)
		s.Duration = &d
	}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	return s
}

// transition moves the task to a new status, recording start/end
// timestamps exactly once per the invariants in the data model: start
// time is set the first time the task enters RUNNING, end time is set
// the first time it enters any terminal state. Only the Executor worker
// that currently owns the task may call this.
func (t *Task) transition(status Status, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return
	}
	t.status = status
	if status == StatusRunning && t.startTime.IsZero() {
		t.startTime = now
	}
	if status.IsTerminal() && t.endTime.IsZero() {
		t.endTime = now
	}
}

func (t *Task) finish(status Status, result any, err error, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return
	}
	t.status = status
	t.result = result
	t.err = err
	if t.endTime.IsZero() {
		t.endTime = now
	}
}
