package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects agent loop metrics.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.ToolInvoked("get_weather_for_location", "success", elapsed)
type Metrics struct {
	// ToolInvocations counts tool invocations.
	// Labels: tool, status (success|unknown_tool|invalid_arguments|execution_error)
	ToolInvocations *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// ModelRequests counts provider attempts.
	// Labels: provider, outcome (success|retry|error|cancelled)
	ModelRequests *prometheus.CounterVec

	// ModelDuration measures the latency of each provider attempt in seconds.
	// Backoff waits are not observed.
	// Labels: provider
	ModelDuration *prometheus.HistogramVec

	// ModelRetries counts transport retries.
	// Labels: provider
	ModelRetries *prometheus.CounterVec

	// TokensUsed tracks token consumption.
	// Labels: provider, type (prompt|completion)
	TokensUsed *prometheus.CounterVec

	// Turns counts completed user turns.
	// Labels: outcome (done|round_limit|model_error|cancelled|error)
	Turns *prometheus.CounterVec

	// Rounds observes the number of tool rounds per user turn.
	Rounds prometheus.Histogram

	// ActiveSessions tracks sessions held in memory.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates the metrics and registers them on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ToolInvocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolthread_tool_invocations_total",
				Help: "Total number of tool invocations",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolthread_tool_duration_seconds",
				Help:    "Tool execution duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		ModelRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolthread_model_requests_total",
				Help: "Total number of provider attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),
		ModelDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolthread_model_duration_seconds",
				Help:    "Provider attempt duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		ModelRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolthread_model_retries_total",
				Help: "Total number of retried model calls",
			},
			[]string{"provider"},
		),
		TokensUsed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolthread_tokens_total",
				Help: "Total tokens consumed",
			},
			[]string{"provider", "type"},
		),
		Turns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolthread_turns_total",
				Help: "Total number of user turns by outcome",
			},
			[]string{"outcome"},
		),
		Rounds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolthread_turn_rounds",
				Help:    "Tool rounds per user turn",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 20},
			},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolthread_active_sessions",
				Help: "Sessions currently held in memory",
			},
		),
	}
}

// ToolInvoked records one tool invocation.
func (m *Metrics) ToolInvoked(tool, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ToolInvocations.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ModelCalled records one provider attempt.
func (m *Metrics) ModelCalled(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ModelRequests.WithLabelValues(provider, outcome).Inc()
	m.ModelDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ModelRetried records a transport retry.
func (m *Metrics) ModelRetried(provider string) {
	if m == nil {
		return
	}
	m.ModelRetries.WithLabelValues(provider).Inc()
}

// TokensConsumed records prompt and completion token counts.
func (m *Metrics) TokensConsumed(provider string, prompt, completion uint32) {
	if m == nil {
		return
	}
	m.TokensUsed.WithLabelValues(provider, "prompt").Add(float64(prompt))
	m.TokensUsed.WithLabelValues(provider, "completion").Add(float64(completion))
}

// TurnFinished records the outcome of one user turn.
func (m *Metrics) TurnFinished(outcome string, rounds int) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.Rounds.Observe(float64(rounds))
}

// SessionsActive sets the in-memory session gauge.
func (m *Metrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
