package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus collectors the Router, ToolExecutor, and
// RateLimiter publish against. Build one with NewMetrics and share it
// read-only across every component in a process; the underlying CounterVec/
// HistogramVec types are already safe for concurrent use.
type Metrics struct {
	// ProviderCallDuration measures one Router turn's end-to-end latency.
	// Labels: provider_id, model_id, outcome (success|failure)
	ProviderCallDuration *prometheus.HistogramVec

	// CacheResult counts Router cache lookups by outcome.
	// Labels: result (hit|miss)
	CacheResult *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name, status (success|failure)
	ToolExecutionDuration *prometheus.HistogramVec

	// RateLimitRejections counts calls the RateLimiter turned away.
	// Labels: tool_name
	RateLimitRejections *prometheus.CounterVec
}

// NewMetrics registers the orchestration core's Prometheus collectors
// against reg and returns them. Pass prometheus.DefaultRegisterer in
// production so they're served from the usual /metrics endpoint; tests
// should pass a fresh prometheus.NewRegistry() so repeated calls across the
// test binary don't collide on duplicate collector names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_provider_call_duration_seconds",
				Help:    "Duration of a Router turn's provider call, end to end",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider_id", "model_id", "outcome"},
		),
		CacheResult: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_cache_results_total",
				Help: "Router ResponseCache lookups by result",
			},
			[]string{"result"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_tool_execution_duration_seconds",
				Help:    "Duration of ToolExecutor tool executions",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name", "status"},
		),
		RateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_rate_limit_rejections_total",
				Help: "Calls rejected by the RateLimiter, by tool",
			},
			[]string{"tool_name"},
		),
	}
}

// ObserveProviderCall records one completed Router turn.
func (m *Metrics) ObserveProviderCall(providerID, modelID, outcome string, seconds float64) {
	m.ProviderCallDuration.WithLabelValues(providerID, modelID, outcome).Observe(seconds)
}

// ObserveCacheResult records one Router cache lookup.
func (m *Metrics) ObserveCacheResult(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheResult.WithLabelValues(result).Inc()
}

// ObserveToolExecution records one completed tool execution.
func (m *Metrics) ObserveToolExecution(toolName, status string, seconds float64) {
	m.ToolExecutionDuration.WithLabelValues(toolName, status).Observe(seconds)
}

// IncRateLimitRejection records one RateLimiter rejection.
func (m *Metrics) IncRateLimitRejection(toolName string) {
	m.RateLimitRejections.WithLabelValues(toolName).Inc()
}
