package taskcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFuncDefaults(t *testing.T) {
	task := NewFunc(func(ctx context.Context) (any, error) { return nil, nil })
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, PriorityNormal, task.Priority)
	assert.Equal(t, StatusPending, task.Status())
	assert.Contains(t, task.Name, "Task-")
}

func TestNewFuncOptionsOverrideDefaults(t *testing.T) {
	task := NewFunc(func(ctx context.Context) (any, error) { return nil, nil },
		WithID("custom"),
		WithName("my-task"),
		WithPriority(PriorityHigh),
		WithDependencies("a", "b"),
		WithTimeout(5*time.Second),
		WithMetadata(map[string]any{"k": "v"}),
	)
	assert.Equal(t, "custom", task.ID)
	assert.Equal(t, "my-task", task.Name)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Equal(t, []string{"a", "b"}, task.Dependencies)
	assert.Equal(t, 5*time.Second, task.Timeout)
	assert.Equal(t, "v", task.Metadata["k"])
}

func TestTaskTransitionTerminalIsSticky(t *testing.T) {
	task := NewFunc(func(ctx context.Context) (any, error) { return nil, nil })
	now := time.Now()
	task.finish(StatusCompleted, "done", nil, now)
	task.finish(StatusFailed, nil, errors.New("too late"), now.Add(time.Second))

	assert.Equal(t, StatusCompleted, task.Status())
	v, err := task.Outcome()
	assert.Equal(t, "done", v)
	assert.NoError(t, err)
}

func TestTaskStartEndDurationUnsetBeforeRun(t *testing.T) {
	task := NewFunc(func(ctx context.Context) (any, error) { return nil, nil })
	_, startSet := task.StartTime()
	_, endSet := task.EndTime()
	_, durSet := task.Duration()
	assert.False(t, startSet)
	assert.False(t, endSet)
	assert.False(t, durSet)
}

func TestTaskTransitionStampsStartOnlyOnce(t *testing.T) {
	task := NewFunc(func(ctx context.Context) (any, error) { return nil, nil })
	t1 := time.Now()
	task.transition(StatusRunning, t1)
	t2 := t1.Add(time.Minute)
	task.transition(StatusRunning, t2)

	start, ok := task.StartTime()
	require.True(t, ok)
	assert.True(t, start.Equal(t1))
}

func TestTaskSnapshotReflectsOutcome(t *testing.T) {
	task := NewFunc(func(ctx context.Context) (any, error) { return nil, nil }, WithPriority(PriorityLow))
	now := time.Now()
	task.transition(StatusRunning, now)
	task.finish(StatusFailed, nil, errors.New("boom"), now.Add(10*time.Millisecond))

	snap := task.Snapshot()
	assert.Equal(t, "FAILED", snap.Status)
	assert.Equal(t, "LOW", snap.Priority)
	assert.Equal(t, "boom", snap.Error)
	require.NotNil(t, snap.Duration)
	assert.True(t, *snap.Duration > 0)
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s.String())
	}
	nonTerminal := []Status{StatusPending, StatusScheduled, StatusRunning}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestPriorityOrderingLowerRunsFirst(t *testing.T) {
	assert.Less(t, int(PriorityCritical), int(PriorityHigh))
	assert.Less(t, int(PriorityHigh), int(PriorityMedium))
	assert.Less(t, int(PriorityMedium), int(PriorityNormal))
	assert.Less(t, int(PriorityNormal), int(PriorityLow))
	assert.Less(t, int(PriorityLow), int(PriorityBackground))
}

func TestClampPriorityStaysInRange(t *testing.T) {
	assert.Equal(t, PriorityCritical, clampPriority(-50))
	assert.Equal(t, PriorityBackground, clampPriority(50))
	assert.Equal(t, PriorityMedium, clampPriority(int(PriorityMedium)))
}
