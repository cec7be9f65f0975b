package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder with Prometheus client_golang
// collectors, registered against prometheus.DefaultRegisterer.
type PrometheusRecorder struct {
	stepsTotal      *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	memoryPressure  *prometheus.GaugeVec
	functionFailure *prometheus.CounterVec
}

// NewPrometheusRecorder registers and returns a PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		stepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_steps_total",
				Help: "Total number of agent step loop iterations, by conversation, persona, and whether the step ended the heartbeat chain",
			},
			[]string{"conv_id", "persona", "heartbeat"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tokens_total",
				Help: "Total prompt/completion tokens consumed by agent steps",
			},
			[]string{"conv_id", "persona", "type"},
		),
		stepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_step_duration_seconds",
				Help:    "Duration of a single agent step (one LLM round trip plus function dispatch)",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"conv_id", "persona"},
		),
		memoryPressure: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_memory_pressure_ratio",
				Help: "Working context fullness: current_ctx_token_count / ctx_window",
			},
			[]string{"conv_id"},
		),
		functionFailure: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_function_failures_total",
				Help: "Total number of rejected or failed function calls",
			},
			[]string{"conv_id", "function"},
		),
	}
}

// ObserveStep implements Recorder.
func (p *PrometheusRecorder) ObserveStep(convID, persona string, promptTokens, completionTokens int, heartbeat bool, duration time.Duration) {
	heartbeatLabel := "false"
	if heartbeat {
		heartbeatLabel = "true"
	}
	p.stepsTotal.WithLabelValues(convID, persona, heartbeatLabel).Inc()
	p.tokensTotal.WithLabelValues(convID, persona, "prompt").Add(float64(promptTokens))
	p.tokensTotal.WithLabelValues(convID, persona, "completion").Add(float64(completionTokens))
	p.stepDuration.WithLabelValues(convID, persona).Observe(duration.Seconds())
}

// SetMemoryPressure implements Recorder.
func (p *PrometheusRecorder) SetMemoryPressure(convID string, ratio float64) {
	p.memoryPressure.WithLabelValues(convID).Set(ratio)
}

// IncFunctionFailure implements Recorder.
func (p *PrometheusRecorder) IncFunctionFailure(convID, function string) {
	p.functionFailure.WithLabelValues(convID, function).Inc()
}
