// Package metrics exports pool statistics in the Prometheus exposition
// format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lbsim/internal/core"
	"lbsim/internal/stats"
)

const namespace = "lbsim"

// Source is what the pool collector reads on every scrape.
type Source interface {
	Snapshot() stats.Snapshot
	Workers() []*core.Worker
}

// Metrics owns a private registry. The delay histogram is fed through
// ObserveOutcome; counters are read from the Source at scrape time so
// they always agree with the stats endpoint.
type Metrics struct {
	registry *prometheus.Registry
	delay    prometheus.Histogram
}

// New creates a registry with the delay histogram and the Go runtime
// collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		delay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_delay_seconds",
			Help:      "Simulated processing delay per request.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.4, 0.5, 0.6, 0.75, 1, 2, 5},
		}),
	}
	m.registry.MustRegister(
		m.delay,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOutcome implements stats.Observer.
func (m *Metrics) ObserveOutcome(o core.Outcome) {
	m.delay.Observe(o.Delay)
}

// Register adds the pool collector for src.
func (m *Metrics) Register(src Source) error {
	return m.registry.Register(newPoolCollector(src))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type poolCollector struct {
	src Source

	requests   *prometheus.Desc
	outcomes   *prometheus.Desc
	weight     *prometheus.Desc
	sinkErrors *prometheus.Desc
}

func newPoolCollector(src Source) *poolCollector {
	return &poolCollector{
		src: src,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "requests_total"),
			"Requests routed to a worker.",
			[]string{"worker"}, nil),
		outcomes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "outcomes_total"),
			"Recorded outcomes per worker.",
			[]string{"worker", "outcome"}, nil),
		weight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "weight"),
			"Configured worker weight.",
			[]string{"worker"}, nil),
		sinkErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sink_errors_total"),
			"Outcome lines that could not be written to the sink.",
			nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.outcomes
	ch <- c.weight
	ch <- c.sinkErrors
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.src.Snapshot()
	for _, w := range c.src.Workers() {
		ws, ok := snap.Worker(w.Name())
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(ws.Total), w.Name())
		ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(ws.Success), w.Name(), "success")
		ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(ws.Failed), w.Name(), "failure")
		ch <- prometheus.MustNewConstMetric(c.weight, prometheus.GaugeValue, float64(w.Weight()), w.Name())
	}
	ch <- prometheus.MustNewConstMetric(c.sinkErrors, prometheus.CounterValue, float64(snap.SinkErrors))
}
