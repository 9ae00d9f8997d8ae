package spars

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SJTU-IPADS/Spars-artifacts/cache"
)

const metricsNamespace = "spars"

// metrics holds the engine's Prometheus collectors. Every series carries
// an engine const label so several engines can share a registry.
type metrics struct {
	frames      prometheus.Counter
	frameErrors prometheus.Counter
	tasks       prometheus.Histogram
	merged      prometheus.Counter
	early       prometheus.Counter
	waits       prometheus.Counter
	released    prometheus.Counter
	duration    prometheus.Histogram
	cacheEvents *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	collectors []prometheus.Collector
	reg        prometheus.Registerer
}

func newMetrics(reg prometheus.Registerer, engineID string) *metrics {
	labels := prometheus.Labels{"engine": engineID}
	f := promauto.With(reg)
	m := &metrics{reg: reg}

	m.frames = f.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "frames_total",
		Help:        "Frames rendered.",
		ConstLabels: labels,
	})
	m.frameErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "frame_errors_total",
		Help:        "Frames that returned an error.",
		ConstLabels: labels,
	})
	m.tasks = f.NewHistogram(prometheus.HistogramOpts{
		Namespace:   metricsNamespace,
		Name:        "frame_tasks",
		Help:        "Draw tasks per frame after batching.",
		Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		ConstLabels: labels,
	})
	m.merged = f.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "merged_commands_total",
		Help:        "Draw commands merged into an earlier task.",
		ConstLabels: labels,
	})
	m.early = f.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "early_collections_total",
		Help:        "Tasks collected ahead of an earlier outstanding task.",
		ConstLabels: labels,
	})
	m.waits = f.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "collector_waits_total",
		Help:        "Times the consumer blocked with no task eligible.",
		ConstLabels: labels,
	})
	m.released = f.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "released_objects_total",
		Help:        "Evicted GPU objects destroyed after their frame.",
		ConstLabels: labels,
	})
	m.duration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace:   metricsNamespace,
		Name:        "frame_duration_seconds",
		Help:        "Wall time from batching to submission.",
		Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 14),
		ConstLabels: labels,
	})
	m.cacheEvents = f.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "cache_events_total",
		Help:        "Resource cache events by cache and event.",
		ConstLabels: labels,
	}, []string{"cache", "event"})
	m.cacheSize = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "cache_entries",
		Help:        "Committed entries per resource cache.",
		ConstLabels: labels,
	}, []string{"cache"})

	m.collectors = []prometheus.Collector{
		m.frames, m.frameErrors, m.tasks, m.merged, m.early,
		m.waits, m.released, m.duration, m.cacheEvents, m.cacheSize,
	}
	return m
}

// Observe implements cache.Observer.
func (m *metrics) Observe(name string, ev cache.Event) {
	m.cacheEvents.WithLabelValues(name, ev.String()).Inc()
}

// unregister removes the engine's collectors from its registry.
func (m *metrics) unregister() {
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
}

var _ cache.Observer = (*metrics)(nil)
