package taskcore

import (
	"sync/atomic"
	"time"
)

// StatsSnapshot is a point-in-time view of an Executor's statistics.
// Reading it takes the executor's internal lock only briefly (bounded by
// the number of workers), never pausing the scheduler for longer than
// that.
type StatsSnapshot struct {
	Submitted  int64
	Completed  int64
	Failed     int64
	Cancelled  int64
	TimedOut   int64
	Pending    int64
	Running    int64
	QueueSize  int64
	PeakConcurrent       int64
	WorkStealingTransfers int64
	AverageTaskDuration   time.Duration
	TotalWallClock        time.Duration
}

// execStats holds the atomic counters backing StatsSnapshot.
type execStats struct {
	submitted   atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
	cancelled   atomic.Int64
	timedOut    atomic.Int64
	pending     atomic.Int64
	running     atomic.Int64
	peak        atomic.Int64
	transfers   atomic.Int64
	completedNS atomic.Int64
	startedAt   time.Time
}

func newExecStats() *execStats {
	return &execStats{startedAt: time.Now()}
}

func (s *execStats) onSubmit() {
	s.submitted.Add(1)
	s.pending.Add(1)
}

func (s *execStats) onStart() {
	s.pending.Add(-1)
	n := s.running.Add(1)
	for {
		peak := s.peak.Load()
		if n <= peak {
			return
		}
		if s.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (s *execStats) onCompleted(d time.Duration) {
	s.running.Add(-1)
	s.completed.Add(1)
	s.completedNS.Add(int64(d))
}

func (s *execStats) onFailed() {
	s.running.Add(-1)
	s.failed.Add(1)
}

func (s *execStats) onTimeout() {
	s.running.Add(-1)
	s.failed.Add(1)
	s.timedOut.Add(1)
}

func (s *execStats) onCancelledPending() {
	s.pending.Add(-1)
	s.cancelled.Add(1)
}

func (s *execStats) onCancelledRunning() {
	s.running.Add(-1)
	s.cancelled.Add(1)
}

func (s *execStats) onSteal() {
	s.transfers.Add(1)
}

func (s *execStats) snapshot(queueSize int64) StatsSnapshot {
	completed := s.completed.Load()
	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(s.completedNS.Load() / completed)
	}
	return StatsSnapshot{
		Submitted:             s.submitted.Load(),
		Completed:             completed,
		Failed:                s.failed.Load(),
		Cancelled:             s.cancelled.Load(),
		TimedOut:              s.timedOut.Load(),
		Pending:               s.pending.Load(),
		Running:               s.running.Load(),
		QueueSize:             queueSize,
		PeakConcurrent:        s.peak.Load(),
		WorkStealingTransfers: s.transfers.Load(),
		AverageTaskDuration:   avg,
		TotalWallClock:        time.Since(s.startedAt),
	}
}
