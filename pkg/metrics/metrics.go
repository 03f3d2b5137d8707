package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the application metrics. Each collector owns its own
// registry so tests can construct a fresh one without double-registration.
type Collector struct {
	Registry *prometheus.Registry

	// Acquisition pipeline
	ScrapesTotal    *prometheus.CounterVec // source, outcome
	ScrapeDuration  prometheus.Histogram
	OfflineCycles   prometheus.Counter
	CacheHitsTotal  prometheus.Counter
	CacheMissTotal  prometheus.Counter
	ActiveScrapes   prometheus.Gauge

	// Persistence
	RecordsWritten prometheus.Counter
	DBErrorsTotal  *prometheus.CounterVec // error_type
}

// NewCollector creates a collector with all metrics registered.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		Registry: reg,

		ScrapesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scrapes_total",
				Help:      "Source fetch attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		ScrapeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scrape_duration_seconds",
				Help:      "Duration of one full acquisition (all sources)",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60},
			},
		),

		OfflineCycles: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offline_cycles_total",
				Help:      "Acquisition cycles served by the offline synthesizer",
			},
		),

		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Acquisitions answered from the freshness cache",
			},
		),

		CacheMissTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Acquisitions that required a fresh fetch",
			},
		),

		ActiveScrapes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_scrapes",
				Help:      "Acquisitions currently in flight",
			},
		),

		RecordsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_written_total",
				Help:      "Combined readings persisted to the store",
			},
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Store errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// RecordDBError increments the DB error counter for one error type.
func (c *Collector) RecordDBError(errorType string) {
	if c == nil {
		return
	}
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordScrape increments the per-source fetch counter.
func (c *Collector) RecordScrape(source, outcome string) {
	if c == nil {
		return
	}
	c.ScrapesTotal.WithLabelValues(source, outcome).Inc()
}
