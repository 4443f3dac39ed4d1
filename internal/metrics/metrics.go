// Package metrics exposes the Coordinator's structured progress events
// (spec §4.11 "processed, braids_created, failures") as Prometheus
// collectors, grounded on the examples' registerer/gatherer pattern for
// wiring prometheus.Registerer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Coordinator bundles the counters, histograms, and gauges the
// Coordinator updates as it drains the queue.
type Coordinator interface {
	Processed() prometheus.Counter
	BraidsCreated() prometheus.Counter
	Failures() prometheus.Counter
	Shed() prometheus.Counter
	StageLatency() *prometheus.HistogramVec
	QueueDepth() prometheus.Gauge
}

// NewCoordinator creates and registers the Coordinator's metric set
// under namespace (e.g. "learningcore").
func NewCoordinator(namespace string, registerer prometheus.Registerer) (Coordinator, error) {
	m := &coordinatorMetrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Queue items the coordinator has fully processed (scored, clustered, side effects durable).",
		}),
		braidsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "braids_created_total",
			Help:      "Braid strands successfully appended by C6.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_failures_total",
			Help:      "Queue items that reached a terminal failure state.",
		}),
		shed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_shed_total",
			Help:      "Braiding work shed under backpressure; scoring still proceeded.",
		}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_latency_seconds",
			Help:      "Per-stage latency: classify, score, cluster, braid, promote.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current pending depth of the outbox queue.",
		}),
	}

	for _, c := range []prometheus.Collector{m.processed, m.braidsCreated, m.failures, m.shed, m.stageLatency, m.queueDepth} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type coordinatorMetrics struct {
	processed     prometheus.Counter
	braidsCreated prometheus.Counter
	failures      prometheus.Counter
	shed          prometheus.Counter
	stageLatency  *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
}

func (m *coordinatorMetrics) Processed() prometheus.Counter             { return m.processed }
func (m *coordinatorMetrics) BraidsCreated() prometheus.Counter         { return m.braidsCreated }
func (m *coordinatorMetrics) Failures() prometheus.Counter              { return m.failures }
func (m *coordinatorMetrics) Shed() prometheus.Counter                  { return m.shed }
func (m *coordinatorMetrics) StageLatency() *prometheus.HistogramVec    { return m.stageLatency }
func (m *coordinatorMetrics) QueueDepth() prometheus.Gauge              { return m.queueDepth }

// NewTestCoordinator builds a Coordinator metric set against a fresh,
// unshared registry, for tests that only need the interface's methods
// and not a real /metrics endpoint.
func NewTestCoordinator() Coordinator {
	m, err := NewCoordinator("learningcore_test", prometheus.NewRegistry())
	if err != nil {
		panic(err) // registration against a fresh registry cannot fail
	}
	return m
}
