package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "replay"

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeIgnored = "ignored" // arrived after a reset
)

// Metrics groups the playback service collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	chunkFetches      *prometheus.CounterVec
	chunkFetchSeconds prometheus.Histogram
	staleResolves     prometheus.Counter
	integrityWarnings prometheus.Counter
	sessionsActive    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunkFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_fetches_total",
			Help:      "Chunk fetches by outcome.",
		}, []string{"outcome"}),
		chunkFetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_fetch_seconds",
			Help:      "Time from issuing a chunk fetch to its completion.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		staleResolves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_resolves_total",
			Help:      "Resolved samples flagged as stale.",
		}),
		integrityWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_warnings_total",
			Help:      "Chunk merges that left an entity out of timestamp order.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Playback sessions currently open.",
		}),
	}
	reg.MustRegister(m.chunkFetches, m.chunkFetchSeconds, m.staleResolves, m.integrityWarnings, m.sessionsActive)
	return m
}

func (m *Metrics) ChunkFetched(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.chunkFetches.WithLabelValues(outcome).Inc()
	if outcome != OutcomeIgnored {
		m.chunkFetchSeconds.Observe(took.Seconds())
	}
}

func (m *Metrics) StaleResolves(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.staleResolves.Add(float64(n))
}

func (m *Metrics) IntegrityWarning() {
	if m == nil {
		return
	}
	m.integrityWarnings.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}
