// Package observability wires Prometheus metrics and an OpenTelemetry
// tracer provider across the engine: tool execution, CCA iterations, and
// context budget are the signals an operator actually needs to watch a
// running session.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// SetDefaults fills in the namespace used to prefix every metric name.
func (c *MetricsConfig) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "arbiter"
	}
}

// Metrics holds every Prometheus collector the engine exports. A nil
// *Metrics is safe to call methods on (every Record*/Set* is a no-op), so
// call sites don't need an `if metrics != nil` guard at every use.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec
	toolCallsInFlight prometheus.Gauge

	ccaIterations     *prometheus.CounterVec
	ccaConsensusRatio prometheus.Gauge
	ccaSessionsActive prometheus.Gauge

	contextTokens     *prometheus.GaugeVec
	contextCompactions prometheus.Counter

	workflowStepsTotal *prometheus.CounterVec
	workflowExecActive prometheus.Gauge
}

// NewMetrics builds a Metrics instance, or returns nil if cfg disables
// collection.
func NewMetrics(cfg *MetricsConfig) *Metrics {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	cfg.SetDefaults()

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "tool", Name: "calls_total",
		Help: "Total number of tool invocations.",
	}, []string{"tool_name"})

	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "tool", Name: "call_duration_seconds",
		Help:    "Tool execution duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"tool_name"})

	m.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "tool", Name: "errors_total",
		Help: "Total number of tool execution errors.",
	}, []string{"tool_name"})

	m.toolCallsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "tool", Name: "calls_in_flight",
		Help: "Number of tool calls currently executing.",
	})

	m.ccaIterations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "cca", Name: "iterations_total",
		Help: "Total number of coder/critic/arbiter iterations run.",
	}, []string{"outcome"})

	m.ccaConsensusRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "cca", Name: "last_consensus_ratio",
		Help: "Fraction of critics that approved in the most recent review round.",
	})

	m.ccaSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "cca", Name: "sessions_active",
		Help: "Number of CCA sessions currently running a loop iteration.",
	})

	m.contextTokens = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "context", Name: "tokens",
		Help: "Active context token usage per execution.",
	}, []string{"execution_id"})

	m.contextCompactions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "context", Name: "compactions_total",
		Help: "Total number of context compactions performed.",
	})

	m.workflowStepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "workflow", Name: "steps_total",
		Help: "Total number of workflow steps executed.",
	}, []string{"step_type", "outcome"})

	m.workflowExecActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "workflow", Name: "executions_active",
		Help: "Number of workflow executions not yet completed or cancelled.",
	})

	m.registry.MustRegister(
		m.toolCalls, m.toolCallDuration, m.toolErrors, m.toolCallsInFlight,
		m.ccaIterations, m.ccaConsensusRatio, m.ccaSessionsActive,
		m.contextTokens, m.contextCompactions,
		m.workflowStepsTotal, m.workflowExecActive,
	)
	return m
}

// RecordToolCall records a completed tool invocation's duration.
func (m *Metrics) RecordToolCall(toolName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName).Inc()
	m.toolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordToolError records a tool invocation that ended in error.
func (m *Metrics) RecordToolError(toolName string) {
	if m == nil {
		return
	}
	m.toolErrors.WithLabelValues(toolName).Inc()
}

// IncToolCallsInFlight marks one more tool call as currently executing.
func (m *Metrics) IncToolCallsInFlight() {
	if m == nil {
		return
	}
	m.toolCallsInFlight.Inc()
}

// DecToolCallsInFlight marks a tool call as no longer executing.
func (m *Metrics) DecToolCallsInFlight() {
	if m == nil {
		return
	}
	m.toolCallsInFlight.Dec()
}

// RecordCCAIteration records one coder/critic/arbiter iteration's outcome
// ("approved", "revision", "rejected", "error").
func (m *Metrics) RecordCCAIteration(outcome string) {
	if m == nil {
		return
	}
	m.ccaIterations.WithLabelValues(outcome).Inc()
}

// SetConsensusRatio records the approve-fraction of the most recent
// critic review round.
func (m *Metrics) SetConsensusRatio(ratio float64) {
	if m == nil {
		return
	}
	m.ccaConsensusRatio.Set(ratio)
}

// IncCCASessionsActive/DecCCASessionsActive track concurrently running
// CCA session loops.
func (m *Metrics) IncCCASessionsActive() {
	if m == nil {
		return
	}
	m.ccaSessionsActive.Inc()
}

func (m *Metrics) DecCCASessionsActive() {
	if m == nil {
		return
	}
	m.ccaSessionsActive.Dec()
}

// SetContextTokens records an execution's active context token total.
func (m *Metrics) SetContextTokens(executionID string, tokens int) {
	if m == nil {
		return
	}
	m.contextTokens.WithLabelValues(executionID).Set(float64(tokens))
}

// IncContextCompactions records one compaction run.
func (m *Metrics) IncContextCompactions() {
	if m == nil {
		return
	}
	m.contextCompactions.Inc()
}

// RecordWorkflowStep records one workflow step execution's outcome
// ("completed", "paused", "error").
func (m *Metrics) RecordWorkflowStep(stepType, outcome string) {
	if m == nil {
		return
	}
	m.workflowStepsTotal.WithLabelValues(stepType, outcome).Inc()
}

// IncWorkflowExecutionsActive/DecWorkflowExecutionsActive track
// concurrently running (non-terminal) workflow executions.
func (m *Metrics) IncWorkflowExecutionsActive() {
	if m == nil {
		return
	}
	m.workflowExecActive.Inc()
}

func (m *Metrics) DecWorkflowExecutionsActive() {
	if m == nil {
		return
	}
	m.workflowExecActive.Dec()
}

// Handler returns the HTTP handler serving this registry's metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
