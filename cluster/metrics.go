package cluster

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated after every pass
type Metrics struct {
	passes     prometheus.Counter
	gated      prometheus.Counter
	duration   prometheus.Histogram
	nodes      prometheus.Gauge
	clusters   prometheus.Gauge
	skipped    prometheus.Counter
	duplicates prometheus.Counter
}

// NewMetrics creates the engine collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns = "photocluster"

	m := &Metrics{
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "passes_total",
			Help: "Number of clustering passes run.",
		}),
		gated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "gated_passes_total",
			Help: "Number of passes skipped because the zoom was below the minimum.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "pass_duration_seconds",
			Help:    "Time spent in one clustering pass.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "nodes",
			Help: "Display nodes produced by the last pass.",
		}),
		clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "clusters",
			Help: "Clusters produced by the last pass.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "skipped_markers_total",
			Help: "Markers dropped for invalid coordinates.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "duplicate_markers_total",
			Help: "Markers dropped because their id was already present.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.passes, m.gated, m.duration, m.nodes, m.clusters, m.skipped, m.duplicates)
	}
	return m
}

// observe records one finished pass
func (m *Metrics) observe(r *Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.duration.Observe(elapsed.Seconds())
	if r.Gated {
		m.gated.Inc()
	}

	clusters := 0
	for _, n := range r.Nodes {
		if _, ok := n.(*Cluster); ok {
			clusters++
		}
	}
	m.nodes.Set(float64(len(r.Nodes)))
	m.clusters.Set(float64(clusters))
	m.skipped.Add(float64(len(r.Skipped)))
	m.duplicates.Add(float64(len(r.Duplicates)))
}
