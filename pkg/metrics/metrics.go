package metrics

import (
	"time"
)

// Acquisition and load status label values
const (
	StatusOK       = "ok"
	StatusReused   = "reused"
	StatusFailed   = "failed"
	StatusCreated  = "created"
	StatusRejected = "rejected"
	StatusHit      = "hit"
	StatusLoaded   = "loaded"
	StatusNotFound = "not_found"
)

// RecordAcquisition records a connection acquisition attempt
func (r *Registry) RecordAcquisition(source, status string, duration time.Duration) {
	r.BrokerAcquisitionsTotal.WithLabelValues(source, status).Inc()
	r.BrokerAcquireDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// ConnectionOpened records a newly created live connection
func (r *Registry) ConnectionOpened() {
	r.BrokerLiveConnections.Inc()
}

// ConnectionClosed records a destroyed connection
func (r *Registry) ConnectionClosed() {
	r.BrokerLiveConnections.Dec()
}

// RecordDelistFailure records a failed delist during a before-completion hook
func (r *Registry) RecordDelistFailure() {
	r.BrokerDelistFailuresTotal.Inc()
}

// RecordDestroyFailure records a failed destroy during an after-completion hook
func (r *Registry) RecordDestroyFailure() {
	r.BrokerDestroyFailuresTotal.Inc()
}

// RecordIndexCreate records a property index create attempt
func (r *Registry) RecordIndexCreate(status string) {
	r.IndexCreatesTotal.WithLabelValues(status).Inc()
}

// RecordIndexLoad records a property index lookup by id
func (r *Registry) RecordIndexLoad(status string, duration time.Duration) {
	r.IndexLoadsTotal.WithLabelValues(status).Inc()
	if status == StatusLoaded || status == StatusNotFound || status == StatusFailed {
		r.IndexLoadDuration.Observe(duration.Seconds())
	}
}

// SetIndexCacheEntries updates the cached entry gauge
func (r *Registry) SetIndexCacheEntries(n int) {
	r.IndexCacheEntries.Set(float64(n))
}
