package runregistry

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts registry cache activity.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	Evictions     prometheus.Counter
	ParseFailures prometheus.Counter
	CachedRuns    prometheus.Gauge
}

// NewMetrics creates the registry's metrics and registers them with reg,
// if it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "registry",
			Name:      "cache_hits_total",
			Help:      "Selected runs whose parsed data was already cached.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "registry",
			Name:      "cache_misses_total",
			Help:      "Selected runs that had to be parsed.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "registry",
			Name:      "cache_evictions_total",
			Help:      "Parsed runs dropped to respect the cache size.",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runlens",
			Subsystem: "registry",
			Name:      "parse_failures_total",
			Help:      "Run parses that returned an error.",
		}),
		CachedRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "runlens",
			Subsystem: "registry",
			Name:      "cached_runs",
			Help:      "Runs whose parsed data is cached.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits,
			m.CacheMisses,
			m.Evictions,
			m.ParseFailures,
			m.CachedRuns,
		)
	}

	return m
}

func (m *Metrics) hit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) evicted() {
	if m != nil {
		m.Evictions.Inc()
	}
}

func (m *Metrics) parseFailed() {
	if m != nil {
		m.ParseFailures.Inc()
	}
}

func (m *Metrics) setCached(n int) {
	if m != nil {
		m.CachedRuns.Set(float64(n))
	}
}
