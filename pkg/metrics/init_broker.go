package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initBrokerMetrics() {
	r.BrokerAcquisitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "verge_broker_acquisitions_total",
			Help: "Total number of resource connection acquisitions",
		},
		[]string{"source", "status"},
	)

	r.BrokerAcquireDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verge_broker_acquire_duration_seconds",
			Help:    "Connection acquisition duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"source"},
	)

	r.BrokerLiveConnections = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "verge_broker_live_connections",
			Help: "Number of currently live resource connections",
		},
	)

	r.BrokerDelistFailuresTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "verge_broker_delist_failures_total",
			Help: "Total number of delist failures during before-completion hooks",
		},
	)

	r.BrokerDestroyFailuresTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "verge_broker_destroy_failures_total",
			Help: "Total number of connection destroy failures during after-completion hooks",
		},
	)
}
