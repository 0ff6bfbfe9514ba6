package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stickerjar"

// Metrics holds the jar's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	stickersCommitted prometheus.Counter
	stickerFailures   *prometheus.CounterVec
	analysisFallbacks prometheus.Counter
	archives          *prometheus.CounterVec
	archiveFailures   *prometheus.CounterVec
	liveBodies        prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		stickersCommitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stickers",
				Name:      "committed_total",
				Help:      "Total number of stickers committed into the jar.",
			},
		),
		stickerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stickers",
				Name:      "failures_total",
				Help:      "Total number of sticker creations that failed, by stage.",
			},
			[]string{"stage"},
		),
		analysisFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stickers",
				Name:      "analysis_fallbacks_total",
				Help:      "Total number of stickers enriched with fallback content.",
			},
		),
		archives: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "runs_total",
				Help:      "Total number of completed archives, by trigger.",
			},
			[]string{"trigger"},
		),
		archiveFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "failures_total",
				Help:      "Total number of archive sequences that failed, by step.",
			},
			[]string{"step"},
		),
		liveBodies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "physics",
				Name:      "bodies",
				Help:      "Current number of bodies in the physics world.",
			},
		),
	}

	m.Registry.MustRegister(
		m.stickersCommitted,
		m.stickerFailures,
		m.analysisFallbacks,
		m.archives,
		m.archiveFailures,
		m.liveBodies,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StickerCommitted() {
	if m == nil {
		return
	}
	m.stickersCommitted.Inc()
}

func (m *Metrics) StickerFailed(stage string) {
	if m == nil {
		return
	}
	m.stickerFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) AnalysisFallback() {
	if m == nil {
		return
	}
	m.analysisFallbacks.Inc()
}

func (m *Metrics) Archived(trigger string) {
	if m == nil {
		return
	}
	m.archives.WithLabelValues(trigger).Inc()
}

func (m *Metrics) ArchiveFailed(step string) {
	if m == nil {
		return
	}
	m.archiveFailures.WithLabelValues(step).Inc()
}

// SetBodies records the live body count.
func (m *Metrics) SetBodies(n int) {
	if m == nil {
		return
	}
	m.liveBodies.Set(float64(n))
}
