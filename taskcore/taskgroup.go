package taskcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
)

// Outcome captures a single member task's result within a TaskGroup.
type Outcome struct {
	Value any
	Err   error
}

// TaskGroup is a named set of Tasks executed together as a standalone
// utility for small fan-outs; it does not go through an Executor.
type TaskGroup struct {
	ID      string
	Name    string
	Tasks   []*Task
	Results map[string]Outcome
}

// NewTaskGroup creates an empty, named TaskGroup.
func NewTaskGroup(name string) *TaskGroup {
	return &TaskGroup{
		ID:      xid.New().String(),
		Name:    name,
		Results: make(map[string]Outcome),
	}
}

// AddTask appends task to the group if not already present.
func (g *TaskGroup) AddTask(task *Task) {
	if g.GetTask(task.ID) != nil {
		return
	}
	g.Tasks = append(g.Tasks, task)
}

// RemoveTask drops the task with the given id from the group.
func (g *TaskGroup) RemoveTask(id string) {
	out := g.Tasks[:0]
	for _, t := range g.Tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	g.Tasks = out
}

// GetTask returns the member task with the given id, or nil.
func (g *TaskGroup) GetTask(id string) *Task {
	for _, t := range g.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// HasTask reports whether the group contains a task with the given id.
func (g *TaskGroup) HasTask(id string) bool {
	return g.GetTask(id) != nil
}

// ExecuteTasks runs every member task. With parallel=false (the default)
// members run sequentially in slice order; with parallel=true they are
// launched concurrently via goroutines, bypassing any Executor entirely.
// With continueOnError=false a sequential run stops at the first failure
// and returns it, while a parallel run still waits for every member and
// returns the first failure in slice order; with continueOnError=true no
// error is returned. In every mode each member's outcome is captured in
// Results, and the returned slice holds only the successful values.
func (g *TaskGroup) ExecuteTasks(ctx context.Context, parallel, continueOnError bool) ([]any, error) {
	if parallel {
		return g.executeParallel(ctx, continueOnError)
	}
	return g.executeSequential(ctx, continueOnError)
}

func (g *TaskGroup) executeSequential(ctx context.Context, continueOnError bool) ([]any, error) {
	results := make([]any, 0, len(g.Tasks))
	for _, t := range g.Tasks {
		v, err := runStandalone(ctx, t)
		g.Results[t.ID] = Outcome{Value: v, Err: err}
		if err != nil && !continueOnError {
			return results, err
		}
		if err == nil {
			results = append(results, v)
		}
	}
	return results, nil
}

func (g *TaskGroup) executeParallel(ctx context.Context, continueOnError bool) ([]any, error) {
	type indexed struct {
		idx int
		v   any
		err error
	}
	out := make(chan indexed, len(g.Tasks))
	var wg sync.WaitGroup
	wg.Add(len(g.Tasks))
	for i, t := range g.Tasks {
		go func(i int, t *Task) {
			defer wg.Done()
			v, err := runStandalone(ctx, t)
			out <- indexed{idx: i, v: v, err: err}
		}(i, t)
	}
	wg.Wait()
	close(out)

	values := make([]any, len(g.Tasks))
	errs := make([]error, len(g.Tasks))
	for r := range out {
		values[r.idx] = r.v
		errs[r.idx] = r.err
	}

	results := make([]any, 0, len(g.Tasks))
	var firstErr error
	for i, t := range g.Tasks {
		g.Results[t.ID] = Outcome{Value: values[i], Err: errs[i]}
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		results = append(results, values[i])
	}
	if firstErr != nil && !continueOnError {
		return results, firstErr
	}
	return results, nil
}

// runStandalone executes a task's function directly, applying its timeout
// if set, without involving an Executor's queues or statistics.
func runStandalone(ctx context.Context, t *Task) (any, error) {
	t.transition(StatusRunning, time.Now())

	runCtx := ctx
	var cancel context.CancelFunc
	if t.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := t.fn(runCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			err := fmt.Errorf("%w: %v", ErrTaskFailed, r.err)
			t.finish(StatusFailed, nil, err, time.Now())
			return nil, err
		}
		t.finish(StatusCompleted, r.v, nil, time.Now())
		return r.v, nil
	case <-runCtx.Done():
		if t.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err := newTimeoutError(t.ID, t.Timeout)
			t.finish(StatusTimeout, nil, err, time.Now())
			return nil, err
		}
		t.finish(StatusCancelled, nil, ErrTaskCancelled, time.Now())
		return nil, ErrTaskCancelled
	}
}

// ToMap renders the group as a plain map, suitable for JSON
// serialization, mirroring the introspection the underlying Tasks offer
// via Snapshot.
func (g *TaskGroup) ToMap() map[string]any {
	tasks := make([]Snapshot, len(g.Tasks))
	for i, t := range g.Tasks {
		tasks[i] = t.Snapshot()
	}
	return map[string]any{
		"id":      g.ID,
		"name":    g.Name,
		"tasks":   tasks,
		"results": g.Results,
	}
}
