package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIndexMetrics() {
	r.IndexCacheEntries = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "verge_index_cache_entries",
			Help: "Number of property index entries currently cached",
		},
	)

	r.IndexCreatesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "verge_index_creates_total",
			Help: "Total number of property index create attempts",
		},
		[]string{"status"},
	)

	r.IndexLoadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "verge_index_loads_total",
			Help: "Total number of property index lookups by id",
		},
		[]string{"status"},
	)

	r.IndexLoadDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verge_index_load_duration_seconds",
			Help:    "Durable store load duration on cache miss in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)
}
