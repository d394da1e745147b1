package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters exported at /metrics. All methods are safe
// on a nil receiver so callers can run without instrumentation.
type Metrics struct {
	registry        *prometheus.Registry
	queries         *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// New builds the counters on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tesouraria",
			Name:      "sync_queries_total",
			Help:      "Collection reads by path (primary, fallback) and result.",
		}, []string{"collection", "path", "result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tesouraria",
			Name:      "sync_mutations_total",
			Help:      "Collection writes by operation and result.",
		}, []string{"collection", "op", "result"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tesouraria",
			Name:      "sync_reconciliations_total",
			Help:      "Delayed refetches run after creates.",
		}, []string{"collection", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tesouraria",
			Name:      "notifications_total",
			Help:      "Notifications by tag and result.",
		}, []string{"tag", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queries,
		m.mutations,
		m.reconciliations,
		m.notifications,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveQuery(collection, path string, err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(collection, path, result(err)).Inc()
}

func (m *Metrics) ObserveMutation(collection, op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(collection, op, result(err)).Inc()
}

func (m *Metrics) ObserveReconciliation(collection string, err error) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(collection, result(err)).Inc()
}

func (m *Metrics) ObserveNotification(tag string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(tag, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
