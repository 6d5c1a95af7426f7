package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns the registry the worker exposes on /metrics, with the
// Go runtime and process collectors already registered.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

type metrics struct {
	registry            *prometheus.Registry
	jobsTotal           *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	activeJobs          prometheus.Gauge
	throttledTotal      prometheus.Counter
	pixelsRenderedTotal prometheus.Counter
	bytesWrittenTotal   prometheus.Counter
}

func newMetrics(registry *prometheus.Registry) *metrics {
	if registry == nil {
		registry = NewRegistry()
	}

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tileflow_worker_jobs_total",
			Help: "Total render jobs by source kind and final status.",
		}, []string{"source_kind", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tileflow_worker_job_duration_seconds",
			Help:    "Total handling duration for each render job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_kind", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tileflow_worker_active_jobs",
			Help: "Current number of render jobs holding a worker slot.",
		}),
		throttledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tileflow_worker_throttled_total",
			Help: "Render jobs deferred by the per-identifier rate limit.",
		}),
		pixelsRenderedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tileflow_worker_pixels_rendered_total",
			Help: "Total output pixels across successful renders.",
		}),
		bytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tileflow_worker_bytes_written_total",
			Help: "Total encoded tile bytes emitted.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.throttledTotal,
		m.pixelsRenderedTotal,
		m.bytesWrittenTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
