// Package metrics provides the Prometheus collectors of the code service
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Code service
	CodeRequestsTotal     *prometheus.CounterVec
	CodeRequestDuration   *prometheus.HistogramVec
	ComponentDetailsTotal *prometheus.CounterVec

	// LLM gateway
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMCircuitState    *prometheus.GaugeVec
}

// Get returns the singleton Metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ucws",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)
	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ucws",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	m.CodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ucws",
			Subsystem: "codegen",
			Name:      "requests_total",
			Help:      "Code service requests by context and terminal status",
		},
		[]string{"context", "status"},
	)
	m.CodeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ucws",
			Subsystem: "codegen",
			Name:      "request_duration_seconds",
			Help:      "End-to-end code service latency by context",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"context"},
	)
	m.ComponentDetailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ucws",
			Subsystem: "codegen",
			Name:      "component_details_total",
			Help:      "Component detail generations by outcome (generated, placeholder)",
		},
		[]string{"outcome"},
	)

	m.LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ucws",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "LLM invocations by gateway and outcome",
		},
		[]string{"gateway", "outcome"},
	)
	m.LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ucws",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM invocation latency by gateway",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"gateway"},
	)
	m.LLMCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ucws",
			Subsystem: "llm",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per gateway (0 closed, 1 open, 2 half-open)",
		},
		[]string{"gateway"},
	)

	return m
}

// RecordHTTPRequest records one served HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(d.Seconds())
}

// RecordCodeRequest records a finished code service request
func (m *Metrics) RecordCodeRequest(context, status string, d time.Duration) {
	m.CodeRequestsTotal.WithLabelValues(context, status).Inc()
	m.CodeRequestDuration.WithLabelValues(context).Observe(d.Seconds())
}

// RecordComponentDetail records the outcome of one component detail generation
func (m *Metrics) RecordComponentDetail(outcome string) {
	m.ComponentDetailsTotal.WithLabelValues(outcome).Inc()
}

// RecordLLMCall records one gateway invocation
func (m *Metrics) RecordLLMCall(gateway, outcome string, d time.Duration) {
	m.LLMRequestsTotal.WithLabelValues(gateway, outcome).Inc()
	m.LLMRequestDuration.WithLabelValues(gateway).Observe(d.Seconds())
}

// SetCircuitState publishes a breaker state transition
func (m *Metrics) SetCircuitState(gateway string, state int) {
	m.LLMCircuitState.WithLabelValues(gateway).Set(float64(state))
}
