package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus series for step execution, scaled down
// from the teacher's PrometheusMetrics (graph/metrics.go) to what a
// sequential, single-threaded step loop can actually observe: no
// inflight/queue gauges (there is never more than one node running),
// just per-step latency, step and run outcome counts, and suspension counts.
type Metrics struct {
	stepLatency  *prometheus.HistogramVec
	stepsTotal   *prometheus.CounterVec
	suspensions  prometheus.Counter
	runsTotal    *prometheus.CounterVec
}

// NewMetrics registers the executor's series with registry. Passing nil
// registers against prometheus.DefaultRegisterer, matching the teacher's
// NewPrometheusMetrics convention.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflowrunner",
			Subsystem: "executor",
			Name:      "step_latency_ms",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_id", "node_type", "status"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowrunner",
			Subsystem: "executor",
			Name:      "steps_total",
		}, []string{"node_type", "status"}),
		suspensions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "workflowrunner",
			Subsystem: "executor",
			Name:      "suspensions_total",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowrunner",
			Subsystem: "executor",
			Name:      "runs_total",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeStep(nodeID, nodeType, status string, latencyMs float64) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(nodeID, nodeType, status).Observe(latencyMs)
	m.stepsTotal.WithLabelValues(nodeType, status).Inc()
}

func (m *Metrics) observeSuspension() {
	if m == nil {
		return
	}
	m.suspensions.Inc()
}

func (m *Metrics) observeRunOutcome(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}
