package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sti_api"

// Metrics holds the Prometheus counters and histograms for the retrieval pipeline.
type Metrics struct {
	// Catalog metrics.
	CatalogListings *prometheus.CounterVec // labels: kind={runs,steps}, outcome={success,error}
	MetadataCache   *prometheus.CounterVec // labels: result={hit,miss}
	ExistenceChecks *prometheus.CounterVec // labels: result={exists,missing,error}

	// Local cache metrics.
	CacheProbes      *prometheus.CounterVec // labels: result={absent,valid,invalid}
	Downloads        *prometheus.CounterVec // labels: outcome={success,not_found,integrity,error}
	DownloadDuration prometheus.Histogram
	LockWait         prometheus.Histogram

	// Loader metrics.
	DatasetLoads   *prometheus.CounterVec // labels: outcome={success,error}
	DecodeDuration prometheus.Histogram
	LateRefetches  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can create as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CatalogListings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_listings_total",
			Help:      "Object store prefix listings by kind and outcome.",
		}, []string{"kind", "outcome"}),
		MetadataCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_total",
			Help:      "Metadata cache lookups by result.",
		}, []string{"result"}),
		ExistenceChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "existence_checks_total",
			Help:      "Remote object existence probes by result.",
		}, []string{"result"}),
		CacheProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_probes_total",
			Help:      "Local cache file validity probes by result.",
		}, []string{"result"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Object downloads into the local cache by outcome.",
		}, []string{"outcome"}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of an object download including validation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_lock_wait_seconds",
			Help:      "Time spent waiting for the cross-process cache entry lock.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Dataset loads by outcome.",
		}, []string{"outcome"}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding a NetCDF file, excluding decode lock wait.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LateRefetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_decode_refetches_total",
			Help:      "Cache entries evicted and refetched after a decode failure at load time.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CatalogListings,
		m.MetadataCache,
		m.ExistenceChecks,
		m.CacheProbes,
		m.Downloads,
		m.DownloadDuration,
		m.LockWait,
		m.DatasetLoads,
		m.DecodeDuration,
		m.LateRefetches,
	}
}
