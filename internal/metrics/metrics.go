// Package metrics collects and exposes Prometheus metrics for the
// computeq server: submission and retrieval counters by outcome, the
// pending-job backlog, kernel latency, and the registered-client gauge.
// Served on /metrics when enabled in the config.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"computeq/pkg/types"
)

// Collector bundles the server's Prometheus metrics.
type Collector struct {
	submitsTotal *prometheus.CounterVec
	getsTotal    *prometheus.CounterVec

	jobsEnqueued  prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsPending   prometheus.Gauge

	kernelLatency prometheus.Histogram

	clientsRegistered prometheus.Gauge
}

// NewCollector creates and registers the collector on the default
// registry.
func NewCollector() *Collector {
	c := &Collector{
		submitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "computeq_submits_total",
			Help: "Total submissions handled, by mode and status",
		}, []string{"mode", "status"}),
		getsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "computeq_gets_total",
			Help: "Total ticket retrievals handled, by status",
		}, []string{"status"}),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "computeq_jobs_enqueued_total",
			Help: "Total non-blocking jobs enqueued",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "computeq_jobs_completed_total",
			Help: "Total jobs completed by the worker pool",
		}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "computeq_jobs_pending",
			Help: "Jobs currently held by the store (queued, running, or unretrieved)",
		}),
		kernelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "computeq_kernel_latency_seconds",
			Help:    "Kernel execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		clientsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "computeq_clients_registered",
			Help: "Client identities with a completed handshake",
		}),
	}

	prometheus.MustRegister(c.submitsTotal)
	prometheus.MustRegister(c.getsTotal)
	prometheus.MustRegister(c.jobsEnqueued)
	prometheus.MustRegister(c.jobsCompleted)
	prometheus.MustRegister(c.jobsPending)
	prometheus.MustRegister(c.kernelLatency)
	prometheus.MustRegister(c.clientsRegistered)

	return c
}

// RecordSubmit records one handled submission.
func (c *Collector) RecordSubmit(mode types.SubmitMode, status types.Status) {
	if c == nil {
		return
	}
	m := "blocking"
	if mode == types.NonBlocking {
		m = "nonblocking"
	}
	c.submitsTotal.WithLabelValues(m, status.String()).Inc()
}

// RecordGet records one handled retrieval.
func (c *Collector) RecordGet(status types.Status) {
	if c == nil {
		return
	}
	c.getsTotal.WithLabelValues(status.String()).Inc()
}

// RecordEnqueue records a job entering the queue.
func (c *Collector) RecordEnqueue() {
	if c == nil {
		return
	}
	c.jobsEnqueued.Inc()
}

// RecordCompleted records a finished job and its kernel latency.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
	c.kernelLatency.Observe(latencySeconds)
}

// SetPending updates the live-entry gauge.
func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.jobsPending.Set(float64(n))
}

// SetClients updates the registered-client gauge.
func (c *Collector) SetClients(n int) {
	if c == nil {
		return
	}
	c.clientsRegistered.Set(float64(n))
}

// StartServer serves /metrics on the given port. Blocking; run it in its
// own goroutine.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
