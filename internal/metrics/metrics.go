// Package metrics exposes run counters for Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/scribe/internal/pipeline"
)

// Metrics owns a private registry so repeated construction in tests never
// collides with the global one.
type Metrics struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	items    *prometheus.CounterVec
	parts    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "runs_total",
			Help:      "Digest runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "items_analyzed_total",
			Help:      "Items handed to the analysis engine.",
		}, []string{"mode"}),
		parts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "parts_sent_total",
			Help:      "Output parts delivered to the sink.",
		}, []string{"mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scribe",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a digest run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scribe",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run of each mode finished.",
		}, []string{"mode"}),
	}
	m.registry.MustRegister(
		m.runs, m.items, m.parts, m.duration, m.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RunCompleted records a finished run.
func (m *Metrics) RunCompleted(_ context.Context, r pipeline.Report) {
	mode := string(r.Mode)
	m.runs.WithLabelValues(mode, string(r.Outcome)).Inc()
	m.items.WithLabelValues(mode).Add(float64(r.Items))
	m.parts.WithLabelValues(mode).Add(float64(r.Parts))
	m.duration.WithLabelValues(mode).Observe(r.Duration().Seconds())
	if !r.FinishedAt.IsZero() {
		m.lastRun.WithLabelValues(mode).Set(float64(r.FinishedAt.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
