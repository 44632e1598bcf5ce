package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gamesearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	CatalogRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "catalog_requests_total",
		Help:      "Total catalog store queries by operation and result status.",
	}, []string{"operation", "status"})

	CatalogRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gamesearch",
		Name:      "catalog_request_duration_seconds",
		Help:      "Catalog store query duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1},
	}, []string{"operation"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "provider_requests_total",
		Help:      "Total requests to the metadata provider by result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gamesearch",
		Name:      "provider_request_duration_seconds",
		Help:      "Metadata provider request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"provider"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gamesearch",
		Name:      "provider_available",
		Help:      "Whether the metadata provider is available (1) or blocked by circuit breaker (0).",
	}, []string{"provider"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "cache_evictions_total",
		Help:      "Total number of search cache entries evicted at capacity.",
	})

	WriteBackInsertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "writeback_inserts_total",
		Help:      "Total externally discovered games persisted into the catalog.",
	})

	WriteBackConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "writeback_conflicts_total",
		Help:      "Total duplicate-key conflicts tolerated during write-back.",
	})

	FilterExclusionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamesearch",
		Name:      "filter_exclusions_total",
		Help:      "Total candidates removed by the content policy filter, by stage.",
	}, []string{"stage"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CatalogRequestsTotal,
		CatalogRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		WriteBackInsertsTotal,
		WriteBackConflictsTotal,
		FilterExclusionsTotal,
	)
}
