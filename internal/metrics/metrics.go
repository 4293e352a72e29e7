// Package metrics exposes dispatch and directory metrics for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers never share
// collectors.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	connectsTotal    *prometheus.CounterVec
}

// New registers the service collectors plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adis_dispatch_requests_total",
				Help: "Total number of dispatched operation requests",
			},
			[]string{"method", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adis_dispatch_duration_seconds",
				Help:    "Duration of dispatched operation requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method"},
		),
		connectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adis_directory_connects_total",
				Help: "Total number of directory connect and bind attempts",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		m.connectsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveDispatch records one finished dispatch.
func (m *Metrics) ObserveDispatch(method, outcome string, elapsed time.Duration) {
	m.dispatchTotal.WithLabelValues(method, outcome).Inc()
	m.dispatchDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveConnect records one connect attempt.
func (m *Metrics) ObserveConnect(result string) {
	m.connectsTotal.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
