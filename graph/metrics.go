package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for workflow execution. A single
// Metrics instance is shared by all engines registered with a service.
type Metrics struct {
	nodeDuration     *prometheus.HistogramVec
	checkpointWrites *prometheus.CounterVec
	runsStarted      *prometheus.CounterVec
	runsFinished     *prometheus.CounterVec
}

// NewMetrics builds the workflow metric set and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contentflow",
			Subsystem: "workflow",
			Name:      "node_duration_seconds",
			Help:      "Wall-clock duration of individual node executions.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"workflow_type", "node_id", "status"}),
		checkpointWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Subsystem: "workflow",
			Name:      "checkpoint_writes_total",
			Help:      "Number of checkpoint snapshots written.",
		}, []string{"workflow_type"}),
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Subsystem: "workflow",
			Name:      "runs_started_total",
			Help:      "Number of workflow runs started.",
		}, []string{"workflow_type"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Subsystem: "workflow",
			Name:      "runs_finished_total",
			Help:      "Number of workflow runs finished, by terminal status.",
		}, []string{"workflow_type", "status"}),
	}

	if reg != nil {
		reg.MustRegister(m.nodeDuration, m.checkpointWrites, m.runsStarted, m.runsFinished)
	}
	return m
}

// ObserveNode records one node execution.
func (m *Metrics) ObserveNode(workflowType, nodeID string, d time.Duration, status string) {
	m.nodeDuration.WithLabelValues(workflowType, nodeID, status).Observe(d.Seconds())
}

// IncCheckpointWrites counts one checkpoint write.
func (m *Metrics) IncCheckpointWrites(workflowType string) {
	m.checkpointWrites.WithLabelValues(workflowType).Inc()
}

// IncRunsStarted counts one run start.
func (m *Metrics) IncRunsStarted(workflowType string) {
	m.runsStarted.WithLabelValues(workflowType).Inc()
}

// IncRunsFinished counts one run reaching a terminal status.
func (m *Metrics) IncRunsFinished(workflowType, status string) {
	m.runsFinished.WithLabelValues(workflowType, status).Inc()
}
