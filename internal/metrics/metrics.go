// Package metrics holds the Prometheus collectors for the sync client and the
// mock API server. All recording methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "propsync"

type Metrics struct {
	// Labels: method, outcome (ok, NETWORK, HTTP, MALFORMED, VALIDATION)
	transportRequests *prometheus.CounterVec
	transportDuration *prometheus.HistogramVec
	transportRetries  *prometheus.CounterVec

	// Labels: resource, result (hit, coalesced, fetch)
	storeRequests      *prometheus.CounterVec
	storeStaleDiscards *prometheus.CounterVec
	storeInvalidations *prometheus.CounterVec

	// Labels: mutation, outcome (confirmed, rolled_back, failed)
	mutations *prometheus.CounterVec

	liveEvents *prometheus.CounterVec

	// Labels: route, status
	serverRequests *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transportRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "Remote calls by HTTP method and outcome kind",
		}, []string{"method", "outcome"}),
		transportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Duration of remote calls including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		transportRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Retried remote attempts by HTTP method",
		}, []string{"method"}),
		storeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "requests_total",
			Help:      "Store requests by resource and how they were served",
		}, []string{"resource", "result"}),
		storeStaleDiscards: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "stale_discards_total",
			Help:      "Completed calls discarded because a newer call was initiated",
		}, []string{"resource"}),
		storeInvalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "invalidations_total",
			Help:      "Cached keys marked stale by resource",
		}, []string{"resource"}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Mutations by name and outcome",
		}, []string{"mutation", "outcome"}),
		liveEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "events_total",
			Help:      "Change events received by resource",
		}, []string{"resource"}),
		serverRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API server requests by route and status class",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) ObserveTransport(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transportRequests.WithLabelValues(method, outcome).Inc()
	m.transportDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) TransportRetry(method string) {
	if m == nil {
		return
	}
	m.transportRetries.WithLabelValues(method).Inc()
}

func (m *Metrics) StoreRequest(resource, result string) {
	if m == nil {
		return
	}
	m.storeRequests.WithLabelValues(resource, result).Inc()
}

func (m *Metrics) StaleDiscard(resource string) {
	if m == nil {
		return
	}
	m.storeStaleDiscards.WithLabelValues(resource).Inc()
}

func (m *Metrics) Invalidation(resource string) {
	if m == nil {
		return
	}
	m.storeInvalidations.WithLabelValues(resource).Inc()
}

func (m *Metrics) Mutation(name, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) LiveEvent(resource string) {
	if m == nil {
		return
	}
	m.liveEvents.WithLabelValues(resource).Inc()
}

func (m *Metrics) ServerRequest(route string, status int) {
	if m == nil {
		return
	}
	m.serverRequests.WithLabelValues(route, statusLabel(status)).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
