package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the kernel
type Registry struct {
	// Broker metrics
	BrokerAcquisitionsTotal    *prometheus.CounterVec
	BrokerAcquireDuration      *prometheus.HistogramVec
	BrokerLiveConnections      prometheus.Gauge
	BrokerDelistFailuresTotal  prometheus.Counter
	BrokerDestroyFailuresTotal prometheus.Counter

	// Property index registry metrics
	IndexCacheEntries prometheus.Gauge
	IndexCreatesTotal *prometheus.CounterVec
	IndexLoadsTotal   *prometheus.CounterVec
	IndexLoadDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewRegistry creates a metrics registry with all collectors registered
// against its own prometheus registry
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}
	r.initBrokerMetrics()
	r.initIndexMetrics()
	return r
}

// PrometheusRegistry returns the underlying prometheus registry, for
// exposing via promhttp
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}
