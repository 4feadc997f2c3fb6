package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter publishes a Manager's StatsSnapshot as Prometheus
// gauges/counters on every Collect call. It is optional: a Manager that
// never calls NewMetricsExporter incurs no Prometheus dependency at
// runtime beyond the import.
type MetricsExporter struct {
	mgr *Manager

	submitted  *prometheus.Desc
	completed  *prometheus.Desc
	failed     *prometheus.Desc
	cancelled  *prometheus.Desc
	timedOut   *prometheus.Desc
	pending    *prometheus.Desc
	running    *prometheus.Desc
	queueSize  *prometheus.Desc
	peak       *prometheus.Desc
	stolen     *prometheus.Desc
	avgTaskSec *prometheus.Desc
}

// NewMetricsExporter builds a prometheus.Collector over mgr's
// statistics. Every metric name is prefixed with namespace + "_" (the
// metrics carry no labels), so several Managers can be registered
// against the same registerer under different namespaces.
func NewMetricsExporter(mgr *Manager, namespace string) *MetricsExporter {
	label := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(namespace+"_"+name, help, nil, nil)
	}
	return &MetricsExporter{
		mgr:        mgr,
		submitted:  label("tasks_submitted_total", "total tasks submitted"),
		completed:  label("tasks_completed_total", "total tasks completed"),
		failed:     label("tasks_failed_total", "total tasks failed"),
		cancelled:  label("tasks_cancelled_total", "total tasks cancelled"),
		timedOut:   label("tasks_timed_out_total", "total tasks timed out"),
		pending:    label("tasks_pending", "tasks currently pending"),
		running:    label("tasks_running", "tasks currently running"),
		queueSize:  label("queue_size", "current executor queue depth"),
		peak:       label("peak_concurrent_tasks", "peak observed concurrent tasks"),
		stolen:     label("work_stealing_transfers_total", "total tasks moved between worker deques"),
		avgTaskSec: label("average_task_duration_seconds", "average task run duration in seconds"),
	}
}

// Describe implements prometheus.Collector.
func (m *MetricsExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.submitted
	ch <- m.completed
	ch <- m.failed
	ch <- m.cancelled
	ch <- m.timedOut
	ch <- m.pending
	ch <- m.running
	ch <- m.queueSize
	ch <- m.peak
	ch <- m.stolen
	ch <- m.avgTaskSec
}

// Collect implements prometheus.Collector, sampling a fresh
// StatsSnapshot on every scrape.
func (m *MetricsExporter) Collect(ch chan<- prometheus.Metric) {
	s := m.mgr.GetStatistics()
	ch <- prometheus.MustNewConstMetric(m.submitted, prometheus.CounterValue, float64(s.Submitted))
	ch <- prometheus.MustNewConstMetric(m.completed, prometheus.CounterValue, float64(s.Completed))
	ch <- prometheus.MustNewConstMetric(m.failed, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(m.cancelled, prometheus.CounterValue, float64(s.Cancelled))
	ch <- prometheus.MustNewConstMetric(m.timedOut, prometheus.CounterValue, float64(s.TimedOut))
	ch <- prometheus.MustNewConstMetric(m.pending, prometheus.GaugeValue, float64(s.Pending))
	ch <- prometheus.MustNewConstMetric(m.running, prometheus.GaugeValue, float64(s.Running))
	ch <- prometheus.MustNewConstMetric(m.queueSize, prometheus.GaugeValue, float64(s.QueueSize))
	ch <- prometheus.MustNewConstMetric(m.peak, prometheus.GaugeValue, float64(s.PeakConcurrent))
	ch <- prometheus.MustNewConstMetric(m.stolen, prometheus.CounterValue, float64(s.WorkStealingTransfers))
	ch <- prometheus.MustNewConstMetric(m.avgTaskSec, prometheus.GaugeValue, s.AverageTaskDuration.Seconds())
}

// Register attaches the exporter to registerer, returning any
// registration error (e.g. a duplicate namespace).
func (m *MetricsExporter) Register(registerer prometheus.Registerer) error {
	return registerer.Register(m)
}
