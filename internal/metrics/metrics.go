package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "account"

// Outcome labels of auth operations
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Service counters. Every instance owns its registry so tests may create as many as they want
type Metrics struct {
	registry *prometheus.Registry

	authOperations *prometheus.CounterVec
	sessionsSwept  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_operations_total",
				Help:      "Number of authentication operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Number of stale refresh sessions removed by the sweeper.",
		}),
	}

	m.registry.MustRegister(
		m.authOperations,
		m.sessionsSwept,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Count auth operation, err == nil means success
// Nil receiver is allowed and does nothing
func (m *Metrics) AuthOperation(operation string, err error) {
	if m == nil {
		return
	}

	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.authOperations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) SessionsSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}

// Handler exposing metrics in prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
