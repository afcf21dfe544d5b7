// Package metrics holds the Prometheus collectors for broker traffic and
// the session lifecycle:
//   - algopilot_broker_requests_total{endpoint,outcome}
//   - algopilot_broker_request_duration_seconds{endpoint}
//   - algopilot_session_transitions_total{operation,outcome}
//   - algopilot_session_active (gauge, 0 or 1)
//
// They are served at /metrics by the HTTP adapter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	brokerRequests *prometheus.CounterVec
	brokerDuration *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	sessionActive  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		brokerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "algopilot_broker_requests_total",
				Help: "Broker API requests by endpoint and outcome kind",
			},
			[]string{"endpoint", "outcome"},
		),
		brokerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "algopilot_broker_request_duration_seconds",
				Help:    "Broker API round-trip latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "algopilot_session_transitions_total",
				Help: "Session lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		sessionActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "algopilot_session_active",
				Help: "1 while a broker session is installed",
			},
		),
	}
	reg.MustRegister(m.brokerRequests, m.brokerDuration, m.transitions, m.sessionActive)
	return m
}

// ObserveBrokerRequest records one broker round-trip. outcome is "ok" or an
// error kind.
func (m *Metrics) ObserveBrokerRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.brokerRequests.WithLabelValues(endpoint, outcome).Inc()
	m.brokerDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveTransition records an activate/restore/deactivate result.
func (m *Metrics) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// SetSessionActive flips the active-session gauge.
func (m *Metrics) SetSessionActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}
