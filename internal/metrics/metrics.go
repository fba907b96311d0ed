package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	BackendRequests    *prometheus.CounterVec
	BackendLatency     *prometheus.HistogramVec
	GuardDecisions     *prometheus.CounterVec
	ProfileFetches     *prometheus.CounterVec
	RepositoryDegraded *prometheus.CounterVec
	WAOutgoingMessages *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = newMetrics(namespace)
		prometheus.MustRegister(metricsInstance.collectors()...)
	})
	return metricsInstance
}

// NewUnregistered builds a fresh collector set that is not attached to the
// default registry, for tests and embedded use.
func NewUnregistered(namespace string) *Metrics {
	return newMetrics(namespace)
}

func newMetrics(namespace string) *Metrics {
	return &Metrics{
		BackendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total backend-as-a-service requests by service, resource and status.",
		}, []string{"service", "resource", "status"}),
		BackendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency distribution for backend-as-a-service requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "resource", "status"}),
		GuardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by route class, state and outcome.",
		}, []string{"route_class", "state", "outcome"}),
		ProfileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_fetches_total",
			Help:      "Profile lookups by result (ok, retried, failed, cached, missing).",
		}, []string{"result"}),
		RepositoryDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_degraded_reads_total",
			Help:      "Reads that degraded to an empty result after a backend failure.",
		}, []string{"operation"}),
		WAOutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wa_outgoing_messages_total",
			Help:      "Total outgoing WhatsApp messages sent.",
		}, []string{"type"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors grouped by component.",
		}, []string{"component"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BackendRequests,
		m.BackendLatency,
		m.GuardDecisions,
		m.ProfileFetches,
		m.RepositoryDegraded,
		m.WAOutgoingMessages,
		m.Errors,
	}
}

// IncError bumps the error counter for component; safe on a nil receiver.
func (m *Metrics) IncError(component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(component).Inc()
}

// IncDegraded counts a read that fell back to an empty result.
func (m *Metrics) IncDegraded(operation string) {
	if m == nil {
		return
	}
	m.RepositoryDegraded.WithLabelValues(operation).Inc()
}

// ObserveGuard counts one route guard decision.
func (m *Metrics) ObserveGuard(routeClass, state, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(routeClass, state, outcome).Inc()
}

// IncProfileFetch counts a profile lookup by result.
func (m *Metrics) IncProfileFetch(result string) {
	if m == nil {
		return
	}
	m.ProfileFetches.WithLabelValues(result).Inc()
}
