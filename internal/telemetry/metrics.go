package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the AI gateway.
type Metrics struct {
	RequestTotal           *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec

	ModelInflight          *prometheus.GaugeVec
	ModelConcurrencyLimit  *prometheus.GaugeVec
	ModelFirstChunkSeconds *prometheus.HistogramVec

	AgentEventTotal      *prometheus.CounterVec
	AgentToolUsageTotal  *prometheus.CounterVec
	SuggestionSymbols    *prometheus.CounterVec
	PostprocessDropTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all gateway metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigw_request_total",
			Help: "Total number of requests processed by the gateway.",
		}, []string{"handler", "status", "realm"}),

		RequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aigw_request_duration_seconds",
			Help:    "Total request duration in seconds, including model latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"handler"}),

		ModelInflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aigw_model_inflight_requests",
			Help: "Live model invocations per engine/model pair.",
		}, []string{"model_engine", "model_name"}),

		ModelConcurrencyLimit: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aigw_model_concurrency_limit",
			Help: "Configured concurrency limit per engine/model pair.",
		}, []string{"model_engine", "model_name"}),

		ModelFirstChunkSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aigw_model_first_response_seconds",
			Help:    "Latency to first model response (first chunk when streaming).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"model_engine", "model_name", "streaming"}),

		AgentEventTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigw_agent_event_total",
			Help: "Agent events emitted, by event type.",
		}, []string{"type"}),

		AgentToolUsageTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigw_agent_tool_usage_total",
			Help: "First tool action per request, by unit primitive.",
		}, []string{"unit_primitive"}),

		SuggestionSymbols: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigw_suggestion_symbol_total",
			Help: "Symbols extracted during code-suggestion prompt assembly.",
		}, []string{"lang", "symbol"}),

		PostprocessDropTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aigw_postprocess_action_total",
			Help: "Post-processing transforms that changed model output.",
		}, []string{"transform"}),
	}
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(handler, status, realm string, durationSeconds float64) {
	m.RequestTotal.WithLabelValues(handler, status, realm).Inc()
	m.RequestDurationSeconds.WithLabelValues(handler).Observe(durationSeconds)
}
