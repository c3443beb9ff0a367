// Package metrics exports gateway events as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	eventbus "github.com/hanpama/stitchgraph/internal/eventbus"
	events "github.com/hanpama/stitchgraph/internal/events"
	"github.com/hanpama/stitchgraph/internal/link"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stitchgraph"

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics holds the gateway's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP front end
	httpRequests *prometheus.CounterVec // by status
	httpDuration prometheus.Histogram

	// GraphQL operations
	operations        *prometheus.CounterVec   // by operation type and outcome
	operationDuration *prometheus.HistogramVec // by operation type

	// Remote services
	linkRequests       *prometheus.CounterVec   // by uri and outcome
	linkDuration       *prometheus.HistogramVec // by uri
	linkInFlight       *prometheus.GaugeVec     // by uri
	delegations        *prometheus.CounterVec   // by service and outcome
	delegationDuration *prometheus.HistogramVec // by service
	serviceTypes       *prometheus.GaugeVec     // by service
	registration       *prometheus.GaugeVec     // by service
}

// New creates the gateway metrics in a fresh registry that also carries the
// Go runtime and process collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by status code",
		}, []string{"status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operations_total",
			Help:      "GraphQL operations executed",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operation_duration_seconds",
			Help:      "GraphQL operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		linkRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "requests_total",
			Help:      "Documents sent to remote services",
		}, []string{"uri", "outcome"}),
		linkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "request_duration_seconds",
			Help:      "Remote service round trip duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"uri"}),
		linkInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "requests_in_flight",
			Help:      "Documents sent to remote services and not yet answered",
		}, []string{"uri"}),

		delegations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delegation",
			Name:      "fields_total",
			Help:      "Fields resolved by delegating to a remote service",
		}, []string{"service", "outcome"}),
		delegationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delegation",
			Name:      "duration_seconds",
			Help:      "Delegated field resolution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),

		serviceTypes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "types",
			Help:      "Named types reported by a remote service's introspection",
		}, []string{"service"}),
		registration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "registration_duration_seconds",
			Help:      "Time it took to introspect a remote service at startup",
		}, []string{"service"}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.operations, m.operationDuration,
		m.linkRequests, m.linkDuration, m.linkInFlight,
		m.delegations, m.delegationDuration,
		m.serviceTypes, m.registration,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Attach subscribes the metrics to b and returns a function that detaches
// them again.
func (m *Metrics) Attach(b *eventbus.Bus) (detach func()) {
	unsubs := []func(){
		eventbus.SubscribeTo(b, func(_ context.Context, e events.HTTPFinish) {
			m.httpRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
			m.httpDuration.Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.GraphQLFinish) {
			op := e.OperationType
			if op == "" {
				op = "unknown"
			}
			outcome := OutcomeOK
			if len(e.Errors) > 0 {
				outcome = OutcomeError
			}
			m.operations.WithLabelValues(op, outcome).Inc()
			m.operationDuration.WithLabelValues(op).Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.LinkStart) {
			m.linkInFlight.WithLabelValues(e.URI).Inc()
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.LinkFinish) {
			m.linkInFlight.WithLabelValues(e.URI).Dec()
			m.linkRequests.WithLabelValues(e.URI, outcome(e.Err)).Inc()
			m.linkDuration.WithLabelValues(e.URI).Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.DelegationFinish) {
			m.delegations.WithLabelValues(e.Service, outcome(e.Err)).Inc()
			m.delegationDuration.WithLabelValues(e.Service).Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.ServiceRegistered) {
			m.serviceTypes.WithLabelValues(e.Service).Set(float64(e.Types))
			m.registration.WithLabelValues(e.Service).Set(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case link.IsTimeout(err):
		return OutcomeTimeout
	}
	return OutcomeError
}
