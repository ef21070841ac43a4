// Package metrics exposes Prometheus collectors for a pipeline run.
//
// Every method is safe to call on a nil *Collector so callers can leave
// metrics disabled without guarding each call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/arc/pkg/model"
)

const namespace = "arc"

// Collector groups the run metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	results      *prometheus.CounterVec
	respawns     prometheus.Counter
	jobsQueued   prometheus.Gauge
	resultsQueue prometheus.Gauge
	idleWorkers  prometheus.Gauge
	workers      prometheus.Gauge
}

// New creates a Collector with its own registry. Go runtime and process
// collectors are registered alongside the run metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_records_total",
			Help:      "Status records consumed by the supervisor, by status.",
		}, []string{"status"}),
		respawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_respawns_total",
			Help:      "Workers replaced after a retirement request.",
		}),
		jobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queued",
			Help:      "Envelopes waiting on the inbound job queue.",
		}),
		resultsQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "results_queued",
			Help:      "Status records waiting on the result queue.",
		}),
		idleWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_idle",
			Help:      "Workers whose done flag is set.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Size of the worker pool.",
		}),
	}
	c.registry.MustRegister(
		c.results,
		c.respawns,
		c.jobsQueued,
		c.resultsQueue,
		c.idleWorkers,
		c.workers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, s := range model.AllStatuses {
		c.results.WithLabelValues(s.String())
	}
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveResult counts one consumed status record.
func (c *Collector) ObserveResult(s model.Status) {
	if c == nil {
		return
	}
	c.results.WithLabelValues(s.String()).Inc()
}

// ObserveRespawn counts one worker replacement.
func (c *Collector) ObserveRespawn() {
	if c == nil {
		return
	}
	c.respawns.Inc()
}

// SetPool records the pool size.
func (c *Collector) SetPool(n int) {
	if c == nil {
		return
	}
	c.workers.Set(float64(n))
}

// SetQueues records the current depth of both queues and the idle worker count.
func (c *Collector) SetQueues(jobs, results, idle int) {
	if c == nil {
		return
	}
	c.jobsQueued.Set(float64(jobs))
	c.resultsQueue.Set(float64(results))
	c.idleWorkers.Set(float64(idle))
}
