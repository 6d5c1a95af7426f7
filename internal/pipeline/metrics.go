package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records render outcomes. A nil *Metrics records nothing.
type Metrics struct {
	rendersTotal   *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	stageDuration  *prometheus.HistogramVec
	tileBytes      *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tileflow_pipeline_renders_total",
			Help: "Total tile renders by output format and outcome.",
		}, []string{"format", "outcome"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tileflow_pipeline_render_duration_seconds",
			Help:    "End-to-end render latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tileflow_pipeline_stage_duration_seconds",
			Help:    "Latency of each pipeline stage in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 9),
		}, []string{"stage"}),
		tileBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tileflow_pipeline_tile_bytes",
			Help:    "Encoded tile size in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"format"}),
	}

	if reg != nil {
		reg.MustRegister(m.rendersTotal, m.renderDuration, m.stageDuration, m.tileBytes)
	}
	return m
}

func (m *Metrics) observeStage(stage Stage, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRender(format, outcome string, elapsed time.Duration, size int) {
	if m == nil {
		return
	}
	m.rendersTotal.WithLabelValues(format, outcome).Inc()
	if outcome != outcomeOK {
		return
	}
	m.renderDuration.WithLabelValues(format).Observe(elapsed.Seconds())
	m.tileBytes.WithLabelValues(format).Observe(float64(size))
}
